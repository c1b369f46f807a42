package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/myquery/myquery/internal/agent"
	"github.com/myquery/myquery/internal/database"
	"github.com/myquery/myquery/internal/observability"
	"github.com/myquery/myquery/internal/query"
	"github.com/myquery/myquery/internal/schema"
	"github.com/myquery/myquery/internal/session"
)

// Agent is what the dispatcher needs from a session's agent. *agent.Agent
// implements it.
type Agent interface {
	Connect(ctx context.Context, params database.Params) error
	IsConnected(ctx context.Context) bool
	Schema(ctx context.Context, includeSampleData bool) (schema.Schema, error)
	TableNames(ctx context.Context) ([]string, error)
	GenerateSQL(ctx context.Context, prompt, history string) (string, error)
	ExecuteFlow(ctx context.Context, prompt string, opts agent.FlowOptions) agent.FlowResult
	Analyze(ctx context.Context, question string, result query.Result) (string, error)
	Chat(ctx context.Context, message string) (string, error)
	io.Closer
}

type ConnectData struct {
	Message string `json:"message"`
}

type GenerateData struct {
	SQLQuery string `json:"sql_query"`
}

// DebugFlowData is the execute_query reply when debug is requested.
type DebugFlowData struct {
	agent.FlowResult
	Debug FlowDebug `json:"debug"`
}

type FlowDebug struct {
	GeneratedSQL string `json:"generated_sql"`
	DurationMS   int64  `json:"duration_ms"`
}

type AnalyzeData struct {
	Analysis string `json:"analysis"`
}

type StatusData struct {
	Connected bool            `json:"connected"`
	Tables    []string        `json:"tables"`
	Context   session.Context `json:"context"`
}

type ChatData struct {
	Response string `json:"response"`
}

type Dispatcher struct {
	sessions *session.Store[Agent]
	logger   *slog.Logger
}

func NewDispatcher(sessions *session.Store[Agent], logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Dispatcher{sessions: sessions, logger: logger}
}

func (d *Dispatcher) Sessions() *session.Store[Agent] { return d.sessions }

// Handle decodes and runs one request. It never panics and never returns a
// transport error: every failure is reported in the response.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	started := time.Now()
	cmd, err := DecodeCommand(req.Action, req.Parameters)
	if err != nil {
		observability.ObserveAction(string(req.Action), false, time.Since(started))
		resp := Response{Success: false, Error: err.Error()}
		if _, live := d.sessions.Context(req.SessionID); live {
			resp.SessionID = req.SessionID
		}
		return resp
	}

	var data any
	snapshot, sessionID, err := d.sessions.Do(ctx, req.SessionID, func(a Agent, c *session.Context) (runErr error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				runErr = fmt.Errorf("internal error: %v", recovered)
			}
		}()
		data, runErr = d.apply(ctx, a, c, cmd)
		return runErr
	})

	observability.ObserveAction(string(cmd.Action()), err == nil, time.Since(started))
	logAttrs := []any{
		slog.String("action", string(cmd.Action())),
		slog.String("session_id", sessionID),
		slog.Duration("duration", time.Since(started)),
	}
	if err != nil {
		d.logger.Warn("mcp action failed", append(logAttrs, slog.Any("error", err))...)
		resp := Response{Success: false, Error: err.Error(), SessionID: sessionID}
		if sessionID == "" {
			resp.SessionID = req.SessionID
		}
		if snapshot.SessionID != "" {
			resp.Context = &snapshot
		}
		return resp
	}
	d.logger.Info("mcp action", logAttrs...)
	return Response{Success: true, Data: data, SessionID: sessionID, Context: &snapshot}
}

func (d *Dispatcher) apply(ctx context.Context, a Agent, c *session.Context, cmd Command) (any, error) {
	switch cmd := cmd.(type) {
	case ConnectDB:
		return connect(ctx, a, c, cmd), nil
	case GetSchema:
		current, err := a.Schema(ctx, cmd.IncludeSampleData)
		if err != nil {
			return nil, err
		}
		c.SchemaLoaded = true
		c.TableCount = current.TotalTables
		c.TableNames = current.TableNames()
		return current, nil
	case GenerateQuery:
		sqlText, err := a.GenerateSQL(ctx, cmd.Prompt, cmd.ChatHistory)
		if err != nil {
			return nil, err
		}
		return GenerateData{SQLQuery: sqlText}, nil
	case ExecuteQuery:
		visualize := cmd.Visualize == nil || *cmd.Visualize
		flowStarted := time.Now()
		flow := a.ExecuteFlow(ctx, cmd.Prompt, agent.FlowOptions{Visualize: visualize, Optimize: cmd.Optimize})
		elapsed := time.Since(flowStarted)
		if flow.SQL != "" {
			c.LastQuery = flow.SQL
		}
		if flow.Execution != nil && flow.Execution.Success {
			count := flow.Execution.RowCount
			c.LastResultCount = &count
		}
		if cmd.Debug {
			return DebugFlowData{
				FlowResult: flow,
				Debug:      FlowDebug{GeneratedSQL: flow.SQL, DurationMS: elapsed.Milliseconds()},
			}, nil
		}
		return flow, nil
	case AnalyzeResults:
		answer, err := a.Analyze(ctx, cmd.Prompt, cmd.QueryResult)
		if err != nil {
			return nil, err
		}
		return AnalyzeData{Analysis: answer}, nil
	case GetStatus:
		status := StatusData{Connected: a.IsConnected(ctx), Tables: []string{}}
		if status.Connected {
			tables, err := a.TableNames(ctx)
			if err != nil {
				return nil, err
			}
			sort.Strings(tables)
			status.Tables = tables
		}
		status.Context = *c
		return status, nil
	case Chat:
		reply, err := a.Chat(ctx, cmd.Message)
		if err != nil {
			return nil, err
		}
		return ChatData{Response: reply}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, cmd)
	}
}

// connect reports failures in the payload and leaves the context untouched.
func connect(ctx context.Context, a Agent, c *session.Context, cmd ConnectDB) ConnectData {
	dbType, err := database.ParseType(cmd.DBType)
	if err != nil {
		return ConnectData{Message: fmt.Sprintf("Unsupported database type: %s", cmd.DBType)}
	}
	params := database.Params{
		Type:     dbType,
		Name:     cmd.DBName,
		Host:     cmd.DBHost,
		Port:     cmd.DBPort,
		User:     cmd.DBUser,
		Password: cmd.DBPassword,
	}
	if err := a.Connect(ctx, params); err != nil {
		return ConnectData{Message: fmt.Sprintf("Failed to connect to database: %v", err)}
	}
	c.Connected = true
	c.DBType = string(dbType)
	c.DBName = cmd.DBName
	return ConnectData{Message: fmt.Sprintf("Successfully connected to %s database: %s", dbType, cmd.DBName)}
}
