package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lineage-cli/internal/confidence"
	"github.com/sells-group/lineage-cli/internal/consensus"
	"github.com/sells-group/lineage-cli/internal/resilience"
	"github.com/sells-group/lineage-cli/internal/scorer"
	"github.com/sells-group/lineage-cli/internal/source"
	"github.com/sells-group/lineage-cli/internal/store"
	"github.com/sells-group/lineage-cli/internal/traversal"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig       `yaml:"store" mapstructure:"store"`
	Sources    SourcesConfig     `yaml:"sources" mapstructure:"sources"`
	Anthropic  AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig      `yaml:"openai" mapstructure:"openai"`
	Traversal  traversal.Config  `yaml:"traversal" mapstructure:"traversal"`
	Scoring    scorer.Weights    `yaml:"scoring" mapstructure:"scoring"`
	Confidence confidence.Config `yaml:"confidence" mapstructure:"confidence"`
	Consensus  consensus.Config  `yaml:"consensus" mapstructure:"consensus"`
	Gazetteer  GazetteerConfig   `yaml:"gazetteer" mapstructure:"gazetteer"`
	Server     ServerConfig      `yaml:"server" mapstructure:"server"`
	Log        LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// LimitConfig is the call discipline shared by every upstream source.
type LimitConfig struct {
	MinIntervalMS int `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	WindowCalls   int `yaml:"window_calls" mapstructure:"window_calls"`
	WindowSecs    int `yaml:"window_secs" mapstructure:"window_secs"`
	MaxRetries    int `yaml:"max_retries" mapstructure:"max_retries"`
	DegradeAfter  int `yaml:"degrade_after" mapstructure:"degrade_after"`
}

// Limiter converts the settings into a resilience.LimiterConfig.
func (l LimitConfig) Limiter() resilience.LimiterConfig {
	cfg := resilience.DefaultLimiterConfig()
	cfg.MinInterval = time.Duration(l.MinIntervalMS) * time.Millisecond
	cfg.WindowCalls = l.WindowCalls
	cfg.Window = time.Duration(l.WindowSecs) * time.Second
	cfg.Retry.MaxAttempts = l.MaxRetries + 1
	if l.DegradeAfter > 0 {
		cfg.DegradeAfter = l.DegradeAfter
	}
	return cfg
}

// SourcesConfig configures the upstream genealogy sources.
type SourcesConfig struct {
	FamilySearch FamilySearchConfig `yaml:"familysearch" mapstructure:"familysearch"`
	WikiTree     WikiTreeConfig     `yaml:"wikitree" mapstructure:"wikitree"`
	CivilIndex   CivilIndexConfig   `yaml:"civil_index" mapstructure:"civil_index"`
}

// FamilySearchConfig holds the FamilySearch API settings. The bearer token
// is obtained out of band.
type FamilySearchConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Token       string `yaml:"token" mapstructure:"token"`
	LimitConfig `yaml:",inline" mapstructure:",squash"`
}

// WikiTreeConfig holds the WikiTree API settings.
type WikiTreeConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	AppID       string `yaml:"app_id" mapstructure:"app_id"`
	LimitConfig `yaml:",inline" mapstructure:",squash"`
}

// CivilIndexConfig holds the civil-registration index database settings.
type CivilIndexConfig struct {
	DatabaseURL         string  `yaml:"database_url" mapstructure:"database_url"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxCandidates       int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	YearTolerance       int     `yaml:"year_tolerance" mapstructure:"year_tolerance"`
	LimitConfig         `yaml:",inline" mapstructure:",squash"`
}

// Source converts the settings into the adapter's config.
func (c CivilIndexConfig) Source() source.CivilIndexConfig {
	return source.CivilIndexConfig{
		URL:                 c.DatabaseURL,
		SimilarityThreshold: c.SimilarityThreshold,
		MaxCandidates:       c.MaxCandidates,
		YearTolerance:       c.YearTolerance,
	}
}

// AnthropicConfig holds the Anthropic reviewer settings. An empty key
// disables the reviewer.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// OpenAIConfig holds the OpenAI-compatible reviewer settings. An empty key
// disables the reviewer.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GazetteerConfig points at an optional reference-table override.
type GazetteerConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LINEAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lineage.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	setLimitDefaults(v, "sources.familysearch", 250, 60, 60)
	v.SetDefault("sources.familysearch.enabled", true)
	v.SetDefault("sources.familysearch.base_url", "https://api.familysearch.org")
	setLimitDefaults(v, "sources.wikitree", 500, 30, 60)
	v.SetDefault("sources.wikitree.enabled", true)
	v.SetDefault("sources.wikitree.base_url", "https://api.wikitree.com/api.php")
	v.SetDefault("sources.wikitree.app_id", "lineage-cli")
	setLimitDefaults(v, "sources.civil_index", 0, 0, 60)
	v.SetDefault("sources.civil_index.similarity_threshold", 0.6)
	v.SetDefault("sources.civil_index.max_candidates", 5)
	v.SetDefault("sources.civil_index.year_tolerance", 1)

	// Secrets have empty defaults so LINEAGE_* variables are picked up.
	v.SetDefault("sources.familysearch.token", "")
	v.SetDefault("sources.civil_index.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("gazetteer.path", "")

	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("openai.model", "gpt-4o")

	tr := traversal.DefaultConfig()
	v.SetDefault("traversal.max_depth", tr.MaxDepth)
	v.SetDefault("traversal.accept_threshold", tr.AcceptThreshold)
	v.SetDefault("traversal.enrich_threshold", tr.EnrichThreshold)
	v.SetDefault("traversal.short_circuit_score", tr.ShortCircuitScore)
	v.SetDefault("traversal.min_viable_candidates", tr.MinViableCandidates)
	v.SetDefault("traversal.max_positions", tr.MaxPositions)
	v.SetDefault("traversal.search_limit", tr.SearchLimit)
	v.SetDefault("traversal.max_variants", tr.MaxVariants)
	v.SetDefault("traversal.parent_age_estimate", tr.ParentAgeEstimate)

	w := scorer.DefaultWeights()
	setCapsDefaults(v, "scoring.with_parents", w.WithParents)
	setCapsDefaults(v, "scoring.without_parents", w.WithoutParents)
	v.SetDefault("scoring.birth_far_penalty", w.BirthFarPenalty)
	v.SetDefault("scoring.death_far_penalty", w.DeathFarPenalty)
	v.SetDefault("scoring.place_conflict_penalty", w.PlaceConflictPenalty)
	v.SetDefault("scoring.foreign_penalty", w.ForeignPenalty)
	v.SetDefault("scoring.parent_conflict_penalty", w.ParentConflictPenalty)
	v.SetDefault("scoring.gender_penalty", w.GenderPenalty)
	v.SetDefault("scoring.implausible_penalty", w.ImplausiblePenalty)
	v.SetDefault("scoring.min_parent_age", w.MinParentAge)
	v.SetDefault("scoring.max_parent_age", w.MaxParentAge)
	v.SetDefault("scoring.no_match_ceiling", w.NoMatchCeiling)
	v.SetDefault("scoring.birth_mismatch_ceiling", w.BirthMismatchCeiling)

	cf := confidence.DefaultConfig()
	v.SetDefault("confidence.scorer_share", cf.ScorerShare)
	v.SetDefault("confidence.evidence_share", cf.EvidenceShare)
	weights := make(map[string]int, len(cf.CitationWeights))
	for t, n := range cf.CitationWeights {
		weights[string(t)] = n
	}
	v.SetDefault("confidence.citation_weights", weights)
	v.SetDefault("confidence.evidence_cap", cf.EvidenceCap)
	v.SetDefault("confidence.diversity_types", cf.DiversityTypes)
	v.SetDefault("confidence.diversity_bonus", cf.DiversityBonus)
	v.SetDefault("confidence.tree_strong_bonus", cf.TreeStrongBonus)
	v.SetDefault("confidence.tree_strong_floor", cf.TreeStrongFloor)
	v.SetDefault("confidence.tree_moderate_bonus", cf.TreeModerateBonus)
	v.SetDefault("confidence.tree_moderate_floor", cf.TreeModerateFloor)
	v.SetDefault("confidence.tree_foreign_penalty", cf.TreeForeignPenalty)
	v.SetDefault("confidence.tree_year_tolerance", cf.TreeYearTolerance)
	v.SetDefault("confidence.parent_min_age", cf.ParentMinAge)
	v.SetDefault("confidence.parent_max_age", cf.ParentMaxAge)
	v.SetDefault("confidence.tree_estimate_tolerance", cf.TreeEstimateTolerance)
	v.SetDefault("confidence.multi_source_bonus", cf.MultiSourceBonus)
	v.SetDefault("confidence.confirmation_bonus", cf.ConfirmationBonus)
	v.SetDefault("confidence.confirmation_year_tolerance", cf.ConfirmationYearTolerance)

	cs := consensus.DefaultConfig()
	v.SetDefault("consensus.delta_bound", cs.DeltaBound)
	v.SetDefault("consensus.small_delta", cs.SmallDelta)
	v.SetDefault("consensus.small_tolerance", cs.SmallTolerance)
	v.SetDefault("consensus.medium_delta", cs.MediumDelta)
	v.SetDefault("consensus.medium_tolerance", cs.MediumTolerance)
	v.SetDefault("consensus.large_tolerance", cs.LargeTolerance)
	v.SetDefault("consensus.reviewer_timeout_secs", cs.ReviewerTimeoutSecs)
	v.SetDefault("consensus.max_response_bytes", cs.MaxResponseBytes)
	v.SetDefault("consensus.feedback_limit", cs.FeedbackLimit)
}

func setLimitDefaults(v *viper.Viper, prefix string, intervalMS, windowCalls, windowSecs int) {
	v.SetDefault(prefix+".min_interval_ms", intervalMS)
	v.SetDefault(prefix+".window_calls", windowCalls)
	v.SetDefault(prefix+".window_secs", windowSecs)
	v.SetDefault(prefix+".max_retries", 2)
	v.SetDefault(prefix+".degrade_after", 3)
}

func setCapsDefaults(v *viper.Viper, prefix string, c scorer.Caps) {
	v.SetDefault(prefix+".surname", c.Surname)
	v.SetDefault(prefix+".given", c.Given)
	v.SetDefault(prefix+".birth", c.Birth)
	v.SetDefault(prefix+".place", c.Place)
	v.SetDefault(prefix+".death", c.Death)
	v.SetDefault(prefix+".parents", c.Parents)
	v.SetDefault(prefix+".gender", c.Gender)
}

// Validate checks the configuration needed by one command mode ("trace",
// "consensus", "serve" or "admin"), collecting every problem into one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is not a level", c.Log.Level))
	}

	switch mode {
	case "trace":
		errs = append(errs, c.validateSources()...)
		errs = append(errs, c.validateResolution()...)
	case "consensus":
		if c.Anthropic.Key == "" && c.OpenAI.Key == "" {
			errs = append(errs, "anthropic.key or openai.key is required")
		}
		errs = append(errs, c.validateResolution()...)
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be > 0 and <= 65535, got %d", c.Server.Port))
		}
		errs = append(errs, c.validateResolution()...)
	case "admin":
		if err := c.Confidence.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSources() []string {
	var errs []string
	fs, wt := c.Sources.FamilySearch, c.Sources.WikiTree
	if !(fs.Enabled && fs.Token != "") && !(wt.Enabled && wt.BaseURL != "") {
		errs = append(errs, "at least one search source must be enabled (sources.familysearch.token or sources.wikitree)")
	}
	for name, l := range map[string]LimitConfig{
		"sources.familysearch": fs.LimitConfig,
		"sources.wikitree":     wt.LimitConfig,
		"sources.civil_index":  c.Sources.CivilIndex.LimitConfig,
	} {
		if l.MinIntervalMS < 0 || l.WindowCalls < 0 || l.MaxRetries < 0 {
			errs = append(errs, name+" limits must be >= 0")
		}
		if l.WindowCalls > 0 && l.WindowSecs <= 0 {
			errs = append(errs, name+".window_secs must be > 0 when window_calls is set")
		}
	}
	return errs
}

func (c *Config) validateResolution() []string {
	var errs []string
	for _, err := range []error{
		scorer.ValidateWeights(c.Scoring),
		c.Traversal.Validate(),
		c.Confidence.Validate(),
		c.Consensus.Validate(),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
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
