package multidb

import (
	"bytes"
	"encoding/json"

	"github.com/myquery/myquery/internal/query"
)

// SourceResult is one connection's outcome within a fan-out round.
type SourceResult struct {
	Name string
	query.Result
}

// Results keeps the order in which sources were requested and encodes as a
// JSON object keyed by source name.
type Results []SourceResult

func (rs Results) Get(name string) (query.Result, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r.Result, true
		}
	}
	return query.Result{}, false
}

func (rs Results) Succeeded() Results {
	out := make(Results, 0, len(rs))
	for _, r := range rs {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

func (rs Results) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(rs), func(i int) (string, any) { return rs[i].Name, rs[i].Result })
}

func (rs *Results) UnmarshalJSON(body []byte) error {
	return unmarshalOrdered(body, func(name string, raw json.RawMessage) error {
		var r query.Result
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		*rs = append(*rs, SourceResult{Name: name, Result: r})
		return nil
	})
}

type Comparison []SchemaSummary

type summaryOK struct {
	TableCount int      `json:"table_count"`
	Tables     []string `json:"tables"`
}

type summaryErr struct {
	Error string `json:"error"`
}

func (c Comparison) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(c), func(i int) (string, any) {
		if c[i].Error != "" {
			return c[i].Name, summaryErr{Error: c[i].Error}
		}
		return c[i].Name, summaryOK{TableCount: c[i].TableCount, Tables: c[i].Tables}
	})
}

func marshalOrdered(n int, item func(int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		name, value := item(i)
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func unmarshalOrdered(body []byte, fn func(string, json.RawMessage) error) error {
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(name, raw); err != nil {
			return err
		}
	}
	_, err := dec.Token()
	return err
}
