package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "lineage.db", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.True(t, cfg.Sources.FamilySearch.Enabled)
	assert.Equal(t, "https://api.familysearch.org", cfg.Sources.FamilySearch.BaseURL)
	assert.Equal(t, 250, cfg.Sources.FamilySearch.MinIntervalMS)
	assert.Equal(t, 60, cfg.Sources.FamilySearch.WindowCalls)
	assert.Equal(t, "lineage-cli", cfg.Sources.WikiTree.AppID)
	assert.InDelta(t, 0.6, cfg.Sources.CivilIndex.SimilarityThreshold, 0.001)

	assert.Equal(t, 6, cfg.Traversal.MaxDepth)
	assert.Equal(t, 55, cfg.Traversal.AcceptThreshold)
	assert.Equal(t, 65, cfg.Traversal.EnrichThreshold)
	assert.Equal(t, 80, cfg.Traversal.ShortCircuitScore)
	assert.Equal(t, 20, cfg.Scoring.WithParents.Surname)
	assert.Equal(t, 0, cfg.Scoring.WithoutParents.Parents)
	assert.InDelta(t, 0.6, cfg.Confidence.ScorerShare, 0.001)
	assert.Equal(t, 30, cfg.Confidence.CitationWeights[model.CitationVital])
	assert.Equal(t, 20, cfg.Consensus.DeltaBound)
	assert.Equal(t, 120, cfg.Consensus.ReviewerTimeoutSecs)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/lineage
log:
  level: debug
  format: console
sources:
  familysearch:
    token: fs-token
    window_calls: 30
traversal:
  accept_threshold: 60
scoring:
  with_parents:
    surname: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "fs-token", cfg.Sources.FamilySearch.Token)
	assert.Equal(t, 30, cfg.Sources.FamilySearch.WindowCalls)
	assert.Equal(t, 60, cfg.Traversal.AcceptThreshold)
	assert.Equal(t, 25, cfg.Scoring.WithParents.Surname)
	// Defaults still apply for unset values
	assert.Equal(t, 15, cfg.Scoring.WithParents.Given)
	assert.Equal(t, 250, cfg.Sources.FamilySearch.MinIntervalMS)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LINEAGE_STORE_DRIVER", "postgres")
	t.Setenv("LINEAGE_LOG_LEVEL", "warn")
	t.Setenv("LINEAGE_ANTHROPIC_KEY", "sk-ant")
	t.Setenv("LINEAGE_SOURCES_FAMILYSEARCH_TOKEN", "env-token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant", cfg.Anthropic.Key)
	assert.Equal(t, "env-token", cfg.Sources.FamilySearch.Token)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LINEAGE_SERVER_PORT", "3000")
	t.Setenv("LINEAGE_CONSENSUS_DELTA_BOUND", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Consensus.DeltaBound)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func TestLimiter(t *testing.T) {
	l := LimitConfig{MinIntervalMS: 250, WindowCalls: 60, WindowSecs: 60, MaxRetries: 2}.Limiter()
	assert.Equal(t, 250*time.Millisecond, l.MinInterval)
	assert.Equal(t, 60, l.WindowCalls)
	assert.Equal(t, time.Minute, l.Window)
	assert.Equal(t, 3, l.Retry.MaxAttempts)
	assert.Equal(t, 3, l.DegradeAfter)
}

func TestCivilIndexSource(t *testing.T) {
	c := CivilIndexConfig{DatabaseURL: "postgres://x", SimilarityThreshold: 0.5, MaxCandidates: 3, YearTolerance: 2}
	s := c.Source()
	assert.Equal(t, "postgres://x", s.URL)
	assert.InDelta(t, 0.5, s.SimilarityThreshold, 0.001)
	assert.Equal(t, 3, s.MaxCandidates)
	assert.Equal(t, 2, s.YearTolerance)
}

// loaded returns the defaults as Load would produce them.
func loaded(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidateTrace(t *testing.T) {
	cfg := loaded(t)
	cfg.Sources.FamilySearch.Token = "fs-token"
	assert.NoError(t, cfg.Validate("trace"))

	cfg.Sources.FamilySearch.Token = ""
	cfg.Sources.WikiTree.Enabled = false
	err := cfg.Validate("trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one search source")
}

func TestValidateConsensus(t *testing.T) {
	cfg := loaded(t)
	err := cfg.Validate("consensus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key or openai.key")

	cfg.OpenAI.Key = "sk-openai"
	assert.NoError(t, cfg.Validate("consensus"))
}

func TestValidateServe(t *testing.T) {
	cfg := loaded(t)
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateCollectsNestedProblems(t *testing.T) {
	cfg := loaded(t)
	cfg.Store.Driver = "mysql"
	cfg.Scoring.WithParents.Surname = -5
	cfg.Traversal.EnrichThreshold = 10
	cfg.Consensus.DeltaBound = 50

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "with_parents.surname")
	assert.Contains(t, err.Error(), "enrich_threshold")
	assert.Contains(t, err.Error(), "consensus:")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := loaded(t)
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateAdmin(t *testing.T) {
	cfg := loaded(t)
	assert.NoError(t, cfg.Validate("admin"))

	cfg.Confidence.ScorerShare = 0.9
	assert.Error(t, cfg.Validate("admin"))
}
