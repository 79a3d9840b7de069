package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Clado      CladoConfig      `yaml:"clado" mapstructure:"clado"`
	Apollo     ApolloConfig     `yaml:"apollo" mapstructure:"apollo"`
	Icypeas    IcypeasConfig    `yaml:"icypeas" mapstructure:"icypeas"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	LinkedIn   LinkedInConfig   `yaml:"linkedin" mapstructure:"linkedin"`
	Instantly  InstantlyConfig  `yaml:"instantly" mapstructure:"instantly"`
	Prosp      ProspConfig      `yaml:"prosp" mapstructure:"prosp"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Push       PushConfig       `yaml:"push" mapstructure:"push"`
	Criteria   CriteriaConfig   `yaml:"criteria" mapstructure:"criteria"`
	Alert      AlertConfig      `yaml:"alert" mapstructure:"alert"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// StateDir holds the file checkpoint and downloaded artifacts.
	StateDir string `yaml:"state_dir" mapstructure:"state_dir"`
}

// LLMConfig selects the qualifier backend.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// OpenRouterConfig holds OpenRouter API settings.
type OpenRouterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// CladoConfig holds the URL-keyed enrichment provider settings.
type CladoConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ApolloConfig holds the name+company enrichment provider settings.
type ApolloConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// IcypeasConfig holds the bulk email search/verification settings.
type IcypeasConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollTimeoutSecs  int    `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
	ResultBatchSize  int    `yaml:"result_batch_size" mapstructure:"result_batch_size"`
}

// ApifyConfig holds the scrape-dataset ingest settings.
type ApifyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	ActorID string `yaml:"actor_id" mapstructure:"actor_id"`
}

// LinkedInConfig holds the post-reactions listing settings.
type LinkedInConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	PageDelayMs int    `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
}

// InstantlyConfig holds Instantly campaign settings. CampaignID wins when
// set; otherwise the push resolves CampaignName, creating the campaign on
// first use.
type InstantlyConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	CampaignID   string `yaml:"campaign_id" mapstructure:"campaign_id"`
	CampaignName string `yaml:"campaign_name" mapstructure:"campaign_name"`
}

// ProspConfig holds Prosp campaign settings.
type ProspConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	ListID     string `yaml:"list_id" mapstructure:"list_id"`
	CampaignID string `yaml:"campaign_id" mapstructure:"campaign_id"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// BatchConfig configures batch orchestration. Enrichment batches are smaller
// than qualification batches because contact providers rate-limit harder.
type BatchConfig struct {
	QualifySize         int `yaml:"qualify_size" mapstructure:"qualify_size"`
	EnrichSize          int `yaml:"enrich_size" mapstructure:"enrich_size"`
	Parallel            int `yaml:"parallel" mapstructure:"parallel"`
	GroupDelayMs        int `yaml:"group_delay_ms" mapstructure:"group_delay_ms"`
	CheckpointMaxAgeHrs int `yaml:"checkpoint_max_age_hours" mapstructure:"checkpoint_max_age_hours"`
}

// PushConfig configures campaign/CRM delivery retries and the per-sink
// circuit breaker.
type PushConfig struct {
	MaxRetries       int `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSec   int `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// CriteriaConfig points at the ICP criteria file.
type CriteriaConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AlertConfig configures the failure webhook and the thresholds the
// background checker evaluates.
type AlertConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DLQDepthThreshold    int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// ServerConfig configures the HTTP boundary server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("leadpipe")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "leadpipe.db")
	v.SetDefault("store.state_dir", ".leadpipe")
	v.SetDefault("llm.provider", "openrouter")
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "anthropic/claude-sonnet-4.5")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("clado.base_url", "https://search.clado.ai")
	v.SetDefault("apollo.base_url", "https://api.apollo.io/api/v1")
	v.SetDefault("icypeas.base_url", "https://app.icypeas.com/api")
	v.SetDefault("icypeas.poll_interval_secs", 5)
	v.SetDefault("icypeas.poll_timeout_secs", 600)
	v.SetDefault("icypeas.result_batch_size", 5000)
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("linkedin.base_url", "https://api.scrapingdog.com/linkedin")
	v.SetDefault("linkedin.page_delay_ms", 500)
	v.SetDefault("instantly.base_url", "https://api.instantly.ai/api/v2")
	v.SetDefault("prosp.base_url", "https://api.prosp.ai/v1")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("batch.qualify_size", 20)
	v.SetDefault("batch.enrich_size", 5)
	v.SetDefault("batch.parallel", 3)
	v.SetDefault("batch.group_delay_ms", 250)
	v.SetDefault("batch.checkpoint_max_age_hours", 24)
	v.SetDefault("push.max_retries", 3)
	v.SetDefault("push.backoff_base_secs", 2)
	v.SetDefault("push.breaker_threshold", 5)
	v.SetDefault("push.breaker_reset_secs", 30)
	v.SetDefault("criteria.path", "criteria.yaml")
	v.SetDefault("alert.failure_rate_threshold", 0.5)
	v.SetDefault("alert.dlq_depth_threshold", 100)
	v.SetDefault("alert.check_interval_secs", 300)
	v.SetDefault("alert.lookback_window_hours", 24)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration can support the given mode before
// any work starts. Missing credentials are batch-fatal, so they are caught
// here rather than mid-run.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Batch.QualifySize < 1 {
		problems = append(problems, "batch.qualify_size must be >= 1")
	}
	if c.Batch.EnrichSize < 1 {
		problems = append(problems, "batch.enrich_size must be >= 1")
	}
	if c.Batch.Parallel < 1 || c.Batch.Parallel > 10 {
		problems = append(problems, "batch.parallel must be between 1 and 10")
	}

	switch mode {
	case "run", "qualify":
		switch c.LLM.Provider {
		case "openrouter":
			if c.OpenRouter.Key == "" {
				problems = append(problems, "openrouter.key is required")
			}
		case "anthropic":
			if c.Anthropic.Key == "" {
				problems = append(problems, "anthropic.key is required")
			}
		default:
			problems = append(problems, "llm.provider must be openrouter or anthropic")
		}
	case "enrich", "push", "fetch", "export":
		// Provider/sink credentials are checked at batch entry against the
		// selected provider, not here.
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
