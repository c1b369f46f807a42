package agent

import (
	"errors"
	"log/slog"

	"github.com/myquery/myquery/internal/config"
	"github.com/myquery/myquery/internal/multidb"
	"github.com/myquery/myquery/internal/nl2sql"
	"github.com/myquery/myquery/internal/observability"
)

// OptionsFromConfig wires the configured model and query limits. A missing
// API key is not an error: the agent still connects and executes, and SQL
// generation reports nl2sql.ErrNotConfigured.
func OptionsFromConfig(cfg config.Config, logger *slog.Logger) (Options, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	opts := Options{
		Logger: logger,
		Config: Config{
			MaxRows:      cfg.Query.MaxRows,
			QueryTimeout: cfg.Query.Timeout,
			Fanout:       FanoutConfig(cfg.Query),
		},
	}
	translator, err := nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	switch {
	case errors.Is(err, nl2sql.ErrNotConfigured):
		logger.Warn("llm_not_configured", slog.String("hint", err.Error()))
	case err != nil:
		return Options{}, err
	default:
		opts.Translator = translator
		opts.Completer = translator
	}
	return opts, nil
}

func FanoutConfig(cfg config.QueryConfig) multidb.ExecutorConfig {
	return multidb.ExecutorConfig{
		Concurrency:   cfg.FanoutConcurrency,
		SourceTimeout: cfg.Timeout,
		Guard:         cfg.FanoutGuard,
	}
}
