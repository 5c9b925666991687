package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/capture"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/config"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/llm"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/modules"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/notify"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/store"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/vision"
)

// buildPipeline wires config → store → llm → vision → pipeline. The caller
// owns closing the returned store.
func buildPipeline(ctx context.Context, cfg *config.Config) (*capture.Pipeline, *store.Store, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	if err := syncModules(ctx, cfg, st); err != nil {
		st.Close()
		return nil, nil, err
	}

	client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("llm client: %w", err)
	}

	loc := cfg.Location()
	pipeline := capture.NewPipeline(capture.Deps{
		Store:  st,
		Loader: capture.NewLoader(st, cfg.ConversationWindow, cfg.ConversationTurns),
		Dedup: capture.NewDetector(st, client, cfg.EmbeddingModel, cfg.EmbeddingFallbackModel,
			cfg.SimilarityThreshold, cfg.DedupLookback),
		Classifier: capture.NewClassifier(client, cfg.ClassifierModel),
		Decider: capture.NewDecider(capture.NewHTTPTitleFetcher(cfg.LookupTimeout),
			cfg.ConfidenceThreshold, cfg.AutoCapturePlan),
		Executor:          capture.NewExecutor(st, loc, cfg.AutoCreateProjects),
		Embedder:          client,
		EmbedModel:        cfg.EmbeddingModel,
		Analyzer:          vision.NewOpenAIAnalyzer(client.Raw(), cfg.VisionModel),
		FinanceConfidence: cfg.FinanceThreshold,
		Staleness:         cfg.StalenessWindow,
	})
	return pipeline, st, nil
}

// syncModules loads the optional modules.yaml registry into the store.
func syncModules(ctx context.Context, cfg *config.Config, st *store.Store) error {
	reg, err := modules.Load(cfg.ModulesPath())
	if err != nil {
		return err
	}
	for _, m := range reg.Records() {
		m := m
		if err := st.UpsertModule(ctx, &m); err != nil {
			return fmt.Errorf("sync module %q: %w", m.ID, err)
		}
	}
	if n := len(reg.Modules); n > 0 {
		log.Info().Int("modules", n).Msg("module_registry_synced")
	}
	return nil
}

// buildSender returns the Telegram connector when a bot token is configured,
// else a no-op.
func buildSender(cfg *config.Config) notify.Sender {
	if cfg.TelegramBotToken == "" {
		return notify.NoopSender{}
	}
	return notify.NewTelegramSender(cfg.TelegramBotToken)
}
