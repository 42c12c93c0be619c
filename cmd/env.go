package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/admin"
	"github.com/sells-group/lineage-cli/internal/config"
	"github.com/sells-group/lineage-cli/internal/consensus"
	"github.com/sells-group/lineage-cli/internal/gazetteer"
	"github.com/sells-group/lineage-cli/internal/scorer"
	"github.com/sells-group/lineage-cli/internal/source"
	"github.com/sells-group/lineage-cli/internal/store"
	"github.com/sells-group/lineage-cli/internal/traversal"
	anthropicpkg "github.com/sells-group/lineage-cli/pkg/anthropic"
)

// appEnv holds the store, sources and services shared by every command.
type appEnv struct {
	Store    store.Store
	Registry *source.Registry
	Places   gazetteer.Lookup

	civil *source.CivilIndex
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.civil != nil {
		e.civil.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode, opens and migrates the store and
// builds the source registry. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	places, err := initPlaces(cfg.Gazetteer)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{Store: st, Places: places}
	env.Registry, env.civil = initSources(ctx, cfg.Sources)
	return env, nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "lineage.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &sc.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

func initPlaces(gc config.GazetteerConfig) (gazetteer.Lookup, error) {
	if gc.Path == "" {
		return gazetteer.Default(), nil
	}
	g, err := gazetteer.LoadFile(gc.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load gazetteer")
	}
	zap.L().Info("gazetteer override loaded", zap.String("path", gc.Path))
	return g, nil
}

// initSources registers the configured adapters, primary first, each behind
// its own limiter. The civil index is optional; a connection failure only
// disables confirmation.
func initSources(ctx context.Context, sc config.SourcesConfig) (*source.Registry, *source.CivilIndex) {
	reg := source.NewRegistry()

	if fs := sc.FamilySearch; fs.Enabled {
		inner := source.NewFamilySearch(fs.Token, source.WithFamilySearchBaseURL(fs.BaseURL))
		reg.Register(source.NewLimited(inner, fs.Limiter()))
		if fs.Token == "" {
			zap.L().Debug("LINEAGE_SOURCES_FAMILYSEARCH_TOKEN not set, familysearch unavailable")
		}
	}
	if wt := sc.WikiTree; wt.Enabled {
		inner := source.NewWikiTree(wt.AppID, source.WithWikiTreeBaseURL(wt.BaseURL))
		reg.Register(source.NewLimited(inner, wt.Limiter()))
	}

	var civil *source.CivilIndex
	if ci := sc.CivilIndex; ci.DatabaseURL != "" {
		c, err := source.NewCivilIndex(ctx, ci.Source())
		if err != nil {
			zap.L().Warn("civil index init failed, confirmation disabled", zap.Error(err))
		} else {
			civil = c
			reg.Register(source.NewLimited(c, ci.Limiter()))
		}
	}

	zap.L().Info("sources registered", zap.Strings("sources", reg.Names()))
	return reg, civil
}

func (e *appEnv) controller() *traversal.Controller {
	return traversal.New(cfg.Traversal, e.Store, e.Registry, scorer.New(cfg.Scoring, e.Places), cfg.Confidence, e.Places)
}

func (e *appEnv) admin() *admin.Service {
	return admin.New(e.Store, e.Registry, cfg.Confidence, e.Places)
}

func (e *appEnv) consensus() *consensus.Engine {
	return consensus.New(cfg.Consensus, e.Store, e.Registry, e.Places, reviewers(cfg)...)
}

// reviewers builds one reviewer per configured model provider.
func reviewers(c *config.Config) []consensus.Reviewer {
	var out []consensus.Reviewer
	maxBytes := c.Consensus.MaxResponseBytes
	if c.Anthropic.Key != "" {
		var opts []anthropicpkg.ClientOption
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		client := anthropicpkg.NewClient(c.Anthropic.Key, opts...)
		out = append(out, consensus.NewAnthropicReviewer(client, c.Anthropic.Model, c.Anthropic.MaxTokens, maxBytes))
	}
	if c.OpenAI.Key != "" {
		out = append(out, consensus.NewOpenAIReviewer(c.OpenAI.Key, c.OpenAI.Model, c.OpenAI.BaseURL, maxBytes))
	}
	return out
}
