package agent

import (
	"context"
	"log/slog"

	"github.com/myquery/myquery/internal/analysis"
	"github.com/myquery/myquery/internal/query"
)

type FlowOptions struct {
	// Visualize detects whether the prompt asks for a chart.
	Visualize bool
	// Optimize attaches a review of the generated statement.
	Optimize bool
}

// FlowResult carries every stage of one natural-language request. Error is
// set when a stage that later stages depend on failed.
type FlowResult struct {
	UserPrompt   string             `json:"user_prompt"`
	SQL          string             `json:"sql_query,omitempty"`
	Execution    *query.Result      `json:"execution_result,omitempty"`
	Summary      *analysis.Summary  `json:"summary,omitempty"`
	Analysis     string             `json:"analysis,omitempty"`
	Chart        analysis.ChartType `json:"visualization_type,omitempty"`
	Optimization *analysis.Review   `json:"optimization,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// ExecuteFlow generates SQL for prompt, runs it and analyzes the rows. The
// exchange is added to the conversation history once SQL has run.
func (a *Agent) ExecuteFlow(ctx context.Context, prompt string, opts FlowOptions) FlowResult {
	out := FlowResult{UserPrompt: prompt}

	sqlText, err := a.GenerateSQL(ctx, prompt, "")
	if err != nil {
		out.Error = err.Error()
		a.logger.Warn("sql generation failed", slog.Any("error", err))
		return out
	}
	out.SQL = sqlText
	a.logger.Debug("sql generated", slog.String("sql", sqlText))

	result := a.Execute(ctx, sqlText)
	out.Execution = &result
	if result.Success {
		summary := analysis.Summarize(result)
		out.Summary = &summary
	}

	answer, err := a.Analyze(ctx, prompt, result)
	if err != nil {
		a.logger.Warn("result analysis failed", slog.Any("error", err))
	} else {
		out.Analysis = answer
	}

	if opts.Visualize && result.Success {
		out.Chart = analysis.DetectChart(prompt)
	}
	if opts.Optimize {
		review := a.Review(ctx, sqlText)
		out.Optimization = &review
	}

	a.remember(prompt, sqlText, out.Analysis)
	return out
}
