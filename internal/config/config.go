// Package config loads stepfly's runtime configuration via
// github.com/spf13/viper: a fresh viper instance per Load, fed by the
// environment and an optional file, with nested dotted-key lookups.
// github.com/joho/godotenv loads a local .env for secrets before viper
// reads the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully-resolved runtime configuration.
type Config struct {
	Scheduler struct {
		Concurrency  int
		PollInterval time.Duration
	}
	Worker struct {
		Timeout       time.Duration
		MaxIterations int
		LLMRetry      int
	}
	CodeInterpreter struct {
		MaxRetries int
	}
	UserInteraction struct {
		Timeout time.Duration
	}
	Tools struct {
		EnablePlugins bool
	}
	Paths struct {
		IncidentMapping string
		TSGDir          string
		PlanDAGDir      string
		MemoryDir       string
		TraceDir        string
		DemoDB          string
	}
	LLM struct {
		Provider        string // "anthropic", "openai", or "fake"
		Model           string
		AnthropicAPIKey string
		OpenAIAPIKey    string
		// MaxRPS bounds requests per second per worker process; 0 means
		// unlimited.
		MaxRPS float64
	}
	Sandbox struct {
		ModulesDir string
		Timeout    time.Duration
	}
	UserInteractionTransport struct {
		Telegram bool
		BotToken string
		ChatID   int64
	}
}

// Load reads configuration from an optional file at path (if non-empty and
// present), environment variables prefixed STEPFLY_, and the package's
// defaults, in viper's usual override order (env > file > defaults). No
// command-line flags are bound to the viper instance Load creates.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("stepfly")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	// The LLM SDKs' own API keys are conventionally bare, unprefixed env
	// vars; bind them alongside the STEPFLY_-prefixed forms so a developer
	// who already has ANTHROPIC_API_KEY/OPENAI_API_KEY exported does not
	// need a second copy under the stepfly prefix.
	_ = v.BindEnv("llm.anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("user_interaction.telegram_bot_token", "TELEGRAM_BOT_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	cfg.Scheduler.Concurrency = v.GetInt("scheduler.concurrency")
	cfg.Scheduler.PollInterval = v.GetDuration("scheduler.poll_interval")
	cfg.Worker.Timeout = v.GetDuration("worker.timeout")
	cfg.Worker.MaxIterations = v.GetInt("worker.max_iterations")
	cfg.Worker.LLMRetry = v.GetInt("worker.llm_retry")
	cfg.CodeInterpreter.MaxRetries = v.GetInt("code_interpreter.max_retries")
	cfg.UserInteraction.Timeout = v.GetDuration("user_interaction.timeout")
	cfg.Tools.EnablePlugins = v.GetBool("tools.enable_plugins")
	cfg.Paths.IncidentMapping = v.GetString("paths.incident_mapping")
	cfg.Paths.TSGDir = v.GetString("paths.tsg_dir")
	cfg.Paths.PlanDAGDir = v.GetString("paths.plandag_dir")
	cfg.Paths.MemoryDir = v.GetString("paths.memory_dir")
	cfg.Paths.TraceDir = v.GetString("paths.trace_dir")
	cfg.Paths.DemoDB = v.GetString("paths.demo_db")
	cfg.LLM.Provider = v.GetString("llm.provider")
	cfg.LLM.Model = v.GetString("llm.model")
	cfg.LLM.AnthropicAPIKey = v.GetString("llm.anthropic_api_key")
	cfg.LLM.OpenAIAPIKey = v.GetString("llm.openai_api_key")
	cfg.LLM.MaxRPS = v.GetFloat64("llm.max_rps")
	cfg.Sandbox.ModulesDir = v.GetString("sandbox.modules_dir")
	cfg.Sandbox.Timeout = v.GetDuration("sandbox.timeout")
	cfg.UserInteractionTransport.Telegram = v.GetBool("user_interaction.telegram")
	cfg.UserInteractionTransport.BotToken = v.GetString("user_interaction.telegram_bot_token")
	cfg.UserInteractionTransport.ChatID = v.GetInt64("user_interaction.telegram_chat_id")
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.concurrency", 3)
	v.SetDefault("scheduler.poll_interval", time.Second)
	v.SetDefault("worker.timeout", 180*time.Second)
	v.SetDefault("worker.max_iterations", 10)
	v.SetDefault("worker.llm_retry", 3)
	v.SetDefault("code_interpreter.max_retries", 3)
	v.SetDefault("user_interaction.timeout", 300*time.Second)
	v.SetDefault("tools.enable_plugins", true)
	v.SetDefault("paths.incident_mapping", "data/incidents.json")
	v.SetDefault("paths.tsg_dir", "data/tsgs")
	v.SetDefault("paths.plandag_dir", "data/plandags")
	v.SetDefault("paths.memory_dir", "sessions")
	v.SetDefault("paths.trace_dir", "trace")
	v.SetDefault("paths.demo_db", "data/demo.db")
	v.SetDefault("llm.provider", "fake")
	v.SetDefault("llm.model", "claude-sonnet-4-5")
	v.SetDefault("llm.max_rps", 0.0)
	v.SetDefault("sandbox.modules_dir", "sandbox/modules")
	v.SetDefault("sandbox.timeout", 10*time.Second)
	v.SetDefault("user_interaction.telegram", false)
}
