package app

import (
	"context"
	"errors"
	"io/fs"

	"go.uber.org/zap"

	"github.com/valentinpelus/attackref/internal/config"
	"github.com/valentinpelus/attackref/internal/handler"
	"github.com/valentinpelus/attackref/internal/server"
	"github.com/valentinpelus/attackref/pkg/catalog"
	"github.com/valentinpelus/attackref/pkg/feedback"
	"github.com/valentinpelus/attackref/pkg/knowledge"
	"github.com/valentinpelus/attackref/pkg/llm"
	"github.com/valentinpelus/attackref/pkg/slack"
)

// App holds all application dependencies
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	FeedbackStore *feedback.Store
	LLMProvider   llm.Provider // nil when the provider could not be created
	ProviderErr   error
	Archive       *knowledge.Archive // nil when disabled
	Notifier      *slack.Notifier
	Catalog       *catalog.Catalog // nil when MITRE_CSV could not be loaded
	Server        *server.Server
}

// New initializes a new application with all dependencies. Optional collaborators
// (LLM provider, archive, catalog) that fail to initialize are logged and left out.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, warning := range cfg.Validate() {
		logger.Warn("configuration warning", zap.String("detail", warning))
	}

	a := &App{
		Config:        cfg,
		Logger:        logger,
		FeedbackStore: feedback.NewStore(cfg.FeedbackCSV, logger.Named("feedback")),
		Notifier:      slack.NewNotifier(cfg.SlackWebhookURL),
	}

	// Initialize LLM provider based on configuration
	factory := llm.NewFactory(llm.Config{
		Provider: cfg.LLMProvider,
		Generation: llm.GenerationOptions{
			MaxTokens:      cfg.LLMMaxTokens,
			Temperature:    cfg.LLMTemperature,
			PromptTemplate: cfg.PromptTemplate,
		},
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:     cfg.OpenAIModel,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GeminiModel:     cfg.GeminiModel,
		OllamaURL:       cfg.OllamaURL,
		OllamaModel:     cfg.OllamaModel,
		BedrockRegion:   cfg.BedrockRegion,
		BedrockModel:    cfg.BedrockModel,
	}, logger.Named("llm"))

	provider, err := factory.CreateProvider(ctx)
	if err != nil {
		logger.Warn("LLM provider unavailable, procedure generation disabled", zap.Error(err))
		a.ProviderErr = err
	} else {
		a.LLMProvider = llm.WithLogging(provider, cfg.PromptTemplate, logger.Named("llm"))
	}

	// Initialize procedure archive (if enabled)
	if cfg.ArchiveDatabaseURL != "" {
		archive, err := knowledge.NewArchive(ctx, cfg.ArchiveDatabaseURL, logger.Named("archive"))
		if err != nil {
			logger.Warn("failed to initialize procedure archive, continuing without it", zap.Error(err))
		} else {
			a.Archive = archive
		}
	}

	// Load technique catalog
	cat, err := catalog.Load(cfg.MitreCSV)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("technique catalog not found, /api/techniques disabled", zap.String("path", cfg.MitreCSV))
	case err != nil:
		logger.Warn("failed to load technique catalog", zap.Error(err))
	default:
		a.Catalog = cat
	}

	validator, err := handler.NewValidator()
	if err != nil {
		return nil, err
	}

	a.Server = server.New(server.Options{
		Addr:        cfg.Addr(),
		AuthToken:   cfg.AdminAuthToken,
		CORSOrigins: cfg.CORSAllowedOrigins,
	}, a.handlers(validator), logger)

	return a, nil
}

// handlers builds the endpoint handlers, keeping absent collaborators as untyped nils
func (a *App) handlers(validator *handler.Validator) server.Handlers {
	var notifier handler.FeedbackNotifier
	if a.Notifier.IsConfigured() {
		notifier = a.Notifier
	}
	var archive handler.ProcedureArchive
	if a.Archive != nil {
		archive = a.Archive
	}
	var techniques handler.TechniqueCatalog
	if a.Catalog != nil {
		techniques = a.Catalog
	}

	return server.Handlers{
		Feedback:   handler.NewFeedbackHandler(a.FeedbackStore, validator, notifier, a.Logger.Named("feedback")),
		Procedure:  handler.NewProcedureHandler(a.LLMProvider, a.ProviderErr, archive, validator, a.Logger.Named("procedure")),
		Techniques: handler.NewTechniqueHandler(techniques),
		Pages:      handler.NewPageHandler(a.Config.StaticDir),
	}
}

// Run serves HTTP until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases external connections
func (a *App) Close() error {
	if a.Archive != nil {
		return a.Archive.Close()
	}
	return nil
}

// LogStartupInfo logs application startup information
func (a *App) LogStartupInfo() {
	log := a.Logger.With(zap.String("event", "system"))

	log.Info("starting MITRE ATT&CK application", zap.String("addr", a.Config.Addr()))
	log.Info("feedback store", zap.String("path", a.FeedbackStore.Path()), zap.Bool("exists", a.FeedbackStore.Exists()))

	if a.LLMProvider != nil {
		log.Info("LLM provider", zap.String("name", a.LLMProvider.Name()))
	} else {
		log.Warn("LLM provider: disabled", zap.NamedError("reason", a.ProviderErr))
	}

	if a.Config.AdminAuthToken != "" {
		log.Info("feedback clearing: enabled (Bearer token required)")
	} else {
		log.Warn("feedback clearing: unauthenticated (WARNING: anyone can clear feedback)")
	}

	if a.Notifier.IsConfigured() {
		log.Info("Slack notifications: enabled (thumbs_down feedback)")
	} else {
		log.Info("Slack notifications: disabled")
	}

	if a.Archive != nil {
		log.Info("procedure archive: enabled")
	} else {
		log.Info("procedure archive: disabled")
	}

	if a.Catalog != nil {
		log.Info("technique catalog loaded", zap.Int("rows", a.Catalog.Len()))
	}
}
