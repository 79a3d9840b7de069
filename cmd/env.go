package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/enrich"
	"github.com/sells-group/leadpipe/internal/pipeline"
	"github.com/sells-group/leadpipe/internal/prefilter"
	"github.com/sells-group/leadpipe/internal/qualify"
	"github.com/sells-group/leadpipe/internal/store"
	"github.com/sells-group/leadpipe/pkg/anthropic"
	"github.com/sells-group/leadpipe/pkg/apollo"
	"github.com/sells-group/leadpipe/pkg/clado"
	"github.com/sells-group/leadpipe/pkg/icypeas"
	"github.com/sells-group/leadpipe/pkg/openrouter"
)

// pipelineEnv holds the initialized store, criteria, and pipeline stages
// shared by the run/qualify/enrich/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Criteria     *config.Criteria
	Filter       *prefilter.Filter
	Qualifier    *qualify.Qualifier
	Resolvers    *enrich.Registry
	Orchestrator *pipeline.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// buildCompleter selects the qualifier backend from config.
func buildCompleter() (qualify.Completer, error) {
	switch cfg.LLM.Provider {
	case "openrouter":
		client := openrouter.NewClient(cfg.OpenRouter.Key, openrouter.WithBaseURL(cfg.OpenRouter.BaseURL))
		return qualify.NewOpenRouterCompleter(client, cfg.OpenRouter.Model), nil
	case "anthropic":
		client := anthropic.NewClient(cfg.Anthropic.Key)
		return qualify.NewAnthropicCompleter(client, cfg.Anthropic.Model), nil
	default:
		return nil, eris.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
}

// buildResolvers registers every contact provider that has a configured key.
func buildResolvers() *enrich.Registry {
	reg := enrich.NewRegistry()
	if cfg.Clado.Key != "" {
		client := clado.NewClient(cfg.Clado.Key, clado.WithBaseURL(cfg.Clado.BaseURL))
		reg.Register(enrich.NewCladoResolver(client, true))
	}
	if cfg.Apollo.Key != "" {
		client := apollo.NewClient(cfg.Apollo.Key, apollo.WithBaseURL(cfg.Apollo.BaseURL))
		reg.Register(enrich.NewApolloResolver(client))
	}
	if cfg.Icypeas.Key != "" {
		client := icypeas.NewClient(cfg.Icypeas.Key, icypeas.WithBaseURL(cfg.Icypeas.BaseURL))
		reg.Register(enrich.NewIcypeasResolver(client, icypeasInterval(), icypeasTimeout()))
	}
	return reg
}

func icypeasInterval() time.Duration {
	return time.Duration(cfg.Icypeas.PollIntervalSecs) * time.Second
}

func icypeasTimeout() time.Duration {
	return time.Duration(cfg.Icypeas.PollTimeoutSecs) * time.Second
}

// enrichPolicy maps the --loose flag onto the email selection policy.
func enrichPolicy(loose bool) enrich.Policy {
	if loose {
		return enrich.PolicyLoose
	}
	return enrich.PolicyStrict
}

// initPipelineEnv sets up the store, criteria, qualifier, and resolver
// registry, and builds the orchestrator. Callers should defer env.Close().
func initPipelineEnv(ctx context.Context, provider string, loose bool) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	criteria, err := config.LoadCriteria(cfg.Criteria.Path)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load criteria")
	}

	completer, err := buildCompleter()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	filter := prefilter.New(criteria)
	qualifier := qualify.New(completer, criteria)
	resolvers := buildResolvers()

	orch := pipeline.New(cfg.Batch, st, initCheckpoints(), filter, qualifier, resolvers, provider, enrichPolicy(loose))

	zap.L().Info("pipeline ready",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Strings("resolvers", resolvers.List()),
		zap.String("enrich_provider", provider),
	)

	return &pipelineEnv{
		Store:        st,
		Criteria:     criteria,
		Filter:       filter,
		Qualifier:    qualifier,
		Resolvers:    resolvers,
		Orchestrator: orch,
	}, nil
}
