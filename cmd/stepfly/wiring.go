package main

import (
	"fmt"
	"path/filepath"

	"github.com/microsoft/stepfly/internal/config"
	"github.com/microsoft/stepfly/internal/llmclient/anthropic"
	"github.com/microsoft/stepfly/internal/llmclient/fake"
	"github.com/microsoft/stepfly/internal/llmclient/openai"
	"github.com/microsoft/stepfly/internal/llmclient/ratelimit"
	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/model"
	"github.com/microsoft/stepfly/internal/plugin"
	"github.com/microsoft/stepfly/internal/plugin/catalog"
	"github.com/microsoft/stepfly/internal/sandbox"
	"github.com/microsoft/stepfly/internal/sqlstore"
	"github.com/microsoft/stepfly/internal/telemetry"
	"github.com/microsoft/stepfly/internal/tools/builtin"
	"github.com/microsoft/stepfly/internal/tools/userinteraction"
	"github.com/microsoft/stepfly/internal/tools/userinteraction/telegram"
	"github.com/microsoft/stepfly/internal/toolregistry"
)

// sessionMemoryDir resolves the directory a session's Shared Memory Service
// database lives at: <paths.memory_dir>/<session_id>/memory,
// opened independently by the scheduler and by every worker process that
// shares the session id — each gets its own *sql.DB handle against the same
// SQLite file, which is what makes a spawned worker subprocess able to share
// state with the scheduler process that forked it.
func sessionMemoryDir(cfg config.Config, sessionID string) string {
	return filepath.Join(cfg.Paths.MemoryDir, sessionID, "memory")
}

func openSessionStore(cfg config.Config, sessionID string) (memstore.Store, error) {
	dir := sessionMemoryDir(cfg, sessionID)
	store, err := memstore.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open memory store for session %q: %w", sessionID, err)
	}
	return store, nil
}

// buildLLMClient selects a model.Client per cfg.LLM.Provider:
// "anthropic" and "openai" are thin SDK adapters; "fake" (or an empty
// provider) selects the scripted fake client with one canned finish_step.
// Real providers are wrapped with the llm.max_rps request limiter.
func buildLLMClient(cfg config.Config) (model.Client, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		c, err := anthropic.NewFromAPIKey(cfg.LLM.AnthropicAPIKey, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		return ratelimit.Wrap(c, cfg.LLM.MaxRPS), nil
	case "openai":
		c, err := openai.NewFromAPIKey(cfg.LLM.OpenAIAPIKey, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		return ratelimit.Wrap(c, cfg.LLM.MaxRPS), nil
	case "fake", "":
		return fake.New(model.Response{
			Content: `{"thought":"No LLM provider configured; ending the step.","action":"finish_step","parameters":{"result":"no LLM provider configured","status":"completed","set_edge_status":{}}}`,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm.provider %q (want anthropic, openai, or fake)", cfg.LLM.Provider)
	}
}

// buildUserInteractionTransport selects the side-channel transport:
// stdin by default, or Telegram when configured.
func buildUserInteractionTransport(cfg config.Config) (userinteraction.Transport, error) {
	if !cfg.UserInteractionTransport.Telegram {
		return userinteraction.StdinTransport{}, nil
	}
	return telegram.New(cfg.UserInteractionTransport.BotToken, cfg.UserInteractionTransport.ChatID)
}

// buildToolRegistry assembles the fixed builtin tool set plus,
// when tsgName names a catalog with matching templates, the plugin_N_tool
// set for that TSG. One registry is built fresh per worker process;
// there is no cross-process tool bus.
func buildToolRegistry(cfg config.Config, store memstore.Store, llm model.Client, executorID, tsgName string) (*toolregistry.Registry, error) {
	reg := toolregistry.New()

	transport, err := buildUserInteractionTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("build user interaction transport: %w", err)
	}

	builtins := []toolregistry.Tool{
		builtin.MemoryTool{Store: store},
		builtin.LogReasoningTool{},
		builtin.FinishStepTool{},
		builtin.UserInteractionTool{Transport: transport, Timeout: cfg.UserInteraction.Timeout},
		builtin.SQLQueryTool{Store: store, DefaultPath: cfg.Paths.DemoDB, Open: sqlstore.Open},
		builtin.CodeInterpreterTool{
			Store:      store,
			Sandbox:    sandbox.New(cfg.Sandbox.ModulesDir, cfg.Sandbox.Timeout),
			LLM:        llm,
			Model:      cfg.LLM.Model,
			MaxRetries: cfg.CodeInterpreter.MaxRetries,
		},
	}
	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register builtin tool: %w", err)
		}
	}

	if cfg.Tools.EnablePlugins && tsgName != "" {
		for _, tmpl := range catalog.Templates() {
			if tmpl.SourceTSG != tsgName {
				continue
			}
			adapter := plugin.ToolAdapter{Template: tmpl, Store: store, AgentID: executorID}
			if err := reg.Register(adapter); err != nil {
				return nil, fmt.Errorf("register plugin tool %s: %w", tmpl.ToolName(), err)
			}
		}
	}

	return reg, nil
}

func buildTelemetry() (telemetry.Logger, telemetry.Metrics, telemetry.Tracer) {
	return telemetry.NewClueLogger(), telemetry.NewOTELMetrics(), telemetry.NewOTELTracer()
}
