package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/valentinpelus/attackref/pkg/types"
)

// LoggedProvider records llm_request / llm_response / llm_error events around another provider
type LoggedProvider struct {
	next    Provider
	prompts *PromptBuilder
	logger  *zap.Logger
}

// WithLogging wraps p so every generation is logged with its timing
func WithLogging(p Provider, promptTemplate string, logger *zap.Logger) *LoggedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggedProvider{
		next:    p,
		prompts: NewPromptBuilder(promptTemplate),
		logger:  logger,
	}
}

// Name returns the wrapped provider's name
func (l *LoggedProvider) Name() string {
	return l.next.Name()
}

// GenerateProcedure delegates and logs the outcome
func (l *LoggedProvider) GenerateProcedure(ctx context.Context, req types.ProcedureRequest) (string, error) {
	l.logger.Info("llm_request",
		zap.String("technique", req.TechniqueName),
		zap.Int("prompt_length", len(l.prompts.Build(req))),
		zap.String("provider", l.next.Name()))

	start := time.Now()
	text, err := l.next.GenerateProcedure(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		l.logger.Error("llm_error",
			zap.String("technique", req.TechniqueName),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", err
	}

	l.logger.Info("llm_response",
		zap.String("technique", req.TechniqueName),
		zap.Int("response_length", len(text)),
		zap.Duration("elapsed", elapsed))
	return text, nil
}

// Ping delegates and logs failures
func (l *LoggedProvider) Ping(ctx context.Context) error {
	if err := l.next.Ping(ctx); err != nil {
		l.logger.Warn("llm connection test failed", zap.String("provider", l.next.Name()), zap.Error(err))
		return err
	}
	return nil
}
