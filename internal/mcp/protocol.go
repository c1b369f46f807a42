// Package mcp implements the session-oriented action protocol: request and
// response envelopes, the closed set of actions and their dispatch onto a
// per-session agent.
package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/myquery/myquery/internal/query"
	"github.com/myquery/myquery/internal/session"
)

type Action string

const (
	ActionConnectDB      Action = "connect_db"
	ActionGetSchema      Action = "get_schema"
	ActionGenerateQuery  Action = "generate_query"
	ActionExecuteQuery   Action = "execute_query"
	ActionAnalyzeResults Action = "analyze_results"
	ActionGetStatus      Action = "get_status"
	ActionChat           Action = "chat"
)

var ErrUnknownAction = errors.New("unknown action")

type Request struct {
	Action     Action          `json:"action"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
}

type Response struct {
	Success   bool             `json:"success"`
	Data      any              `json:"data"`
	Error     string           `json:"error,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Context   *session.Context `json:"context,omitempty"`
}

// Command is one decoded action. The set of implementations is closed.
type Command interface {
	Action() Action
	command()
}

type ConnectDB struct {
	DBType     string `json:"db_type" validate:"required"`
	DBName     string `json:"db_name" validate:"required_unless=DBType duckdb"`
	DBHost     string `json:"db_host"`
	DBPort     int    `json:"db_port" validate:"gte=0,lte=65535"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
}

type GetSchema struct {
	IncludeSampleData bool `json:"include_sample_data"`
}

type GenerateQuery struct {
	Prompt      string `json:"prompt" validate:"required"`
	ChatHistory string `json:"chat_history"`
}

type ExecuteQuery struct {
	Prompt string `json:"prompt" validate:"required"`
	// Debug adds the generated statement and the flow duration to the reply.
	Debug bool `json:"debug"`
	// Visualize defaults to true when absent.
	Visualize *bool `json:"visualize"`
	Optimize  bool  `json:"optimize"`
}

type AnalyzeResults struct {
	Prompt string `json:"prompt"`
	// QueryResult accepts the result object or its JSON encoding as a string.
	QueryResult query.Result `json:"-"`
}

type GetStatus struct{}

type Chat struct {
	Message string `json:"message" validate:"required"`
}

func (ConnectDB) Action() Action      { return ActionConnectDB }
func (GetSchema) Action() Action      { return ActionGetSchema }
func (GenerateQuery) Action() Action  { return ActionGenerateQuery }
func (ExecuteQuery) Action() Action   { return ActionExecuteQuery }
func (AnalyzeResults) Action() Action { return ActionAnalyzeResults }
func (GetStatus) Action() Action      { return ActionGetStatus }
func (Chat) Action() Action           { return ActionChat }

func (ConnectDB) command()      {}
func (GetSchema) command()      {}
func (GenerateQuery) command()  {}
func (ExecuteQuery) command()   {}
func (AnalyzeResults) command() {}
func (GetStatus) command()      {}
func (Chat) command()           {}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeCommand parses and validates the parameters of action.
func DecodeCommand(action Action, params json.RawMessage) (Command, error) {
	if len(bytes.TrimSpace(params)) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = json.RawMessage("{}")
	}
	switch action {
	case ActionConnectDB:
		return decodeInto[ConnectDB](params)
	case ActionGetSchema:
		return decodeInto[GetSchema](params)
	case ActionGenerateQuery:
		return decodeInto[GenerateQuery](params)
	case ActionExecuteQuery:
		return decodeInto[ExecuteQuery](params)
	case ActionAnalyzeResults:
		return decodeAnalyze(params)
	case ActionGetStatus:
		return GetStatus{}, nil
	case ActionChat:
		return decodeInto[Chat](params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

func decodeInto[C Command](params json.RawMessage) (Command, error) {
	var cmd C
	if err := json.Unmarshal(params, &cmd); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	return cmd, nil
}

func decodeAnalyze(params json.RawMessage) (Command, error) {
	var raw struct {
		Prompt          string          `json:"prompt"`
		QueryResultJSON json.RawMessage `json:"query_result_json"`
	}
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	body := bytes.TrimSpace(raw.QueryResultJSON)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, errors.New("invalid parameters: query_result_json is required")
	}
	if body[0] == '"' {
		var encoded string
		if err := json.Unmarshal(body, &encoded); err != nil {
			return nil, fmt.Errorf("invalid parameters: %w", err)
		}
		body = []byte(encoded)
	}
	cmd := AnalyzeResults{Prompt: raw.Prompt}
	if err := json.Unmarshal(body, &cmd.QueryResult); err != nil {
		return nil, fmt.Errorf("invalid parameters: query_result_json: %w", err)
	}
	return cmd, nil
}

func validationError(err error) error {
	var vErr validator.ValidationErrors
	if !errors.As(err, &vErr) {
		return err
	}
	problems := make([]string, 0, len(vErr))
	for _, fe := range vErr {
		switch fe.Tag() {
		case "required", "required_unless":
			problems = append(problems, fe.Field()+" is required")
		default:
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("invalid parameters: %s", strings.Join(problems, "; "))
}
