package main

import (
	"fmt"
	"io"
	"log"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap/zapcore"

	"github.com/rahul/conduit/internal/agent"
	"github.com/rahul/conduit/internal/documents"
	"github.com/rahul/conduit/internal/governance"
	"github.com/rahul/conduit/internal/observability"
	"github.com/rahul/conduit/internal/orchestrator"
	"github.com/rahul/conduit/internal/resolver"
	"github.com/rahul/conduit/internal/store"
	"github.com/rahul/conduit/internal/tools"
	"github.com/rahul/conduit/pkg/config"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	store    *store.Store
	model    llms.Model
	tools    *tools.Registry
	actions  *orchestrator.Registry
	resolver *resolver.Resolver
	prompts  *agent.PromptManager
	chrome   *documents.ChromeRenderer
}

// newApp opens the store, builds the language model (when one is
// configured) and installs every tool behind the policy guard. Outbound chat
// messages go to messenger.
func newApp(cfg *config.Config, logOut io.Writer, messenger tools.Messenger) (*app, error) {
	level, err := zapcore.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := observability.NewLogger(logOut, level, cfg.App.LogDir)

	db, err := store.Open(cfg.Memory.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    db,
		resolver: resolver.New(db),
		prompts:  agent.NewPromptManager(cfg.App.PromptsDir),
	}

	a.model, err = newModel(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	if a.model == nil {
		log.Printf("No enabled provider configured; model-backed actions are disabled")
	}

	if err := a.installTools(messenger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newModel(cfg *config.Config) (llms.Model, error) {
	name, p := cfg.GetDefaultProvider()
	switch name {
	case "":
		return nil, nil
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
}

func (a *app) installTools(messenger tools.Messenger) error {
	registry := tools.NewRegistry()

	registry.Register(tools.NewChatTool(messenger))
	registry.Register(tools.NewContactTool(a.store, a.resolver))
	tasks := tools.NewTaskTool(a.store)
	registry.Register(tasks)
	registry.Register(tools.NewMailTool(tools.MailConfig{
		Host:     a.cfg.Mail.Host,
		Port:     a.cfg.Mail.Port,
		Username: a.cfg.Mail.Username,
		Password: a.cfg.Mail.Password,
		From:     a.cfg.Mail.From,
	}))
	registry.Register(tools.NewFetchPageTool())

	if search, err := tools.NewSearchTool(); err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(search)
	}

	var renderer documents.Renderer = documents.HTMLRenderer{}
	if a.cfg.Documents.Chrome {
		a.chrome = documents.NewChromeRenderer(a.cfg.Documents.ChromePath)
		renderer = a.chrome
	}
	generator := documents.NewGenerator(a.store, renderer, a.cfg.Documents.OutputDir, a.logger.Zap())
	registry.Register(tools.NewDocumentTool(generator, a.store, a.model))
	registry.Register(tools.NewShareTool(a.store, messenger, a.cfg.Documents.BaseURL))

	if a.model != nil {
		registry.Register(tools.NewReplyTool(a.model, a.store, messenger))
		registry.Register(tools.NewExtractTasksTool(a.model, tasks))
	}

	engine := governance.NewDefaultPolicyEngine()
	for _, name := range a.cfg.Policy.DenyActions {
		engine.DenyAction(name)
	}
	for _, pattern := range a.cfg.Policy.DenyPatterns {
		if err := engine.DenyArguments(pattern); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}

	actions := orchestrator.NewRegistry(orchestrator.NewPool(a.cfg.Orchestrator.Workers))
	actions.SetGuard(governance.NewGuard(engine, a.logger))
	registry.Install(actions)

	a.tools = registry
	a.actions = actions
	return nil
}

func (a *app) executorOptions() []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithMaxConcurrent(a.cfg.Orchestrator.MaxConcurrent),
		orchestrator.WithStepTimeout(a.cfg.Orchestrator.StepTimeout.Duration),
		orchestrator.WithLogger(a.logger),
	}
}

// assistant wires the message pipeline. It needs a language model.
func (a *app) assistant() (*agent.Assistant, error) {
	if a.model == nil {
		return nil, fmt.Errorf("no enabled provider in config")
	}
	return &agent.Assistant{
		Analyzer:  agent.NewIntentAnalyzer(a.model, a.prompts, a.tools.Describe(), a.logger),
		Responder: agent.NewResponder(a.model, a.prompts),
		Resolver:  a.resolver,
		Registry:  a.actions,
		History:   a.store,
		Logger:    a.logger,
		Options:   a.executorOptions(),
	}, nil
}

func (a *app) Close() {
	if a.chrome != nil {
		a.chrome.Close()
	}
	_ = a.logger.Sync()
	a.store.Close()
}
