// Package app assembles the trained pipeline shared by the HTTP API and the
// terminal form: it resolves the dataset source, trains and activates the
// model, computes the dataset insights and builds the speech announcer.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tripfare/internal/config"
	"tripfare/internal/dataset"
	"tripfare/internal/external"
	"tripfare/internal/forest"
	"tripfare/internal/insights"
	"tripfare/internal/prediction"
	"tripfare/internal/schema"
	"tripfare/internal/speech"
	"tripfare/internal/training"
)

// Runtime is everything a front-end needs once startup has succeeded.
type Runtime struct {
	Schema    *schema.Schema
	Dataset   *dataset.Dataset
	Service   *prediction.Service
	Artifact  *training.Artifact
	Report    *insights.Report
	Announcer *speech.Announcer

	closers []func()
}

// Close waits for pending announcements and releases the dataset pool.
func (rt *Runtime) Close() {
	rt.Service.Wait()
	rt.Announcer.Wait()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// Options tune Bootstrap.
type Options struct {
	// Source overrides the configured dataset source.
	Source dataset.Source
	// AnnouncePredictions registers the announcer as a prediction observer,
	// so every served prediction is spoken.
	AnnouncePredictions bool
	// Synthesizer overrides the ElevenLabs client. Used by tests.
	Synthesizer speech.Synthesizer
}

// Bootstrap loads the dataset, trains the model and activates it. Any
// failure is fatal to the caller.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Runtime, error) {
	s := schema.Default()
	rt := &Runtime{Schema: s}

	src := opts.Source
	if src == nil {
		var closeSrc func()
		var err error
		src, closeSrc, err = NewSource(ctx, cfg.Dataset)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, closeSrc)
	}

	synth := opts.Synthesizer
	if synth == nil {
		synth = NewSynthesizer(cfg, logger)
	}
	rt.Announcer = speech.NewAnnouncer(synth, speech.Config{
		OutputPath: cfg.Speech.OutputPath,
		PlayerCmd:  cfg.Speech.PlayerCmd,
		Timeout:    cfg.Speech.Timeout,
	}, logger)

	var svcOpts []prediction.Option
	if opts.AnnouncePredictions && rt.Announcer.Enabled() {
		svcOpts = append(svcOpts, prediction.WithObserver(rt.Announcer.ObservePrediction))
	}
	rt.Service = prediction.NewService(s, logger, svcOpts...)

	ds, err := dataset.Load(ctx, src, s, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	rt.Dataset = ds

	rt.Report = insights.NewService(s, logger).Generate(ds)

	start := time.Now()
	artifact, err := rt.Service.TrainAndActivate(ctx, ds, TrainingConfig(cfg.Training))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("training model: %w", err)
	}
	rt.Artifact = artifact

	logger.Info("model ready",
		"artifact_id", artifact.ID,
		"train_rows", artifact.TrainRows,
		"test_rows", artifact.TestRows,
		"mae", artifact.Metrics.MAE,
		"rmse", artifact.Metrics.RMSE,
		"r2", artifact.Metrics.R2,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rt, nil
}

// NewSource returns the configured dataset source and a func releasing it.
func NewSource(ctx context.Context, cfg config.DatasetConfig) (dataset.Source, func(), error) {
	if !cfg.UsePostgres() {
		return dataset.FileSource{Path: cfg.Path}, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL.Unmask())
	if err != nil {
		return nil, nil, fmt.Errorf("creating dataset pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging dataset database: %w", err)
	}
	return dataset.PostgresSource{DB: pool, Table: cfg.Table}, pool.Close, nil
}

// NewSynthesizer returns the ElevenLabs client, or nil when speech is
// disabled.
func NewSynthesizer(cfg *config.Config, logger *slog.Logger) speech.Synthesizer {
	if !cfg.Speech.Enabled {
		return nil
	}
	base := external.NewBaseClient(
		&http.Client{Timeout: cfg.Speech.Timeout},
		"elevenlabs",
		external.DefaultRetryPolicy(),
		cfg.Service+"/"+cfg.Build.Version,
	)
	return external.NewSpeechClient(base, external.SpeechClientConfig{
		APIKey:  cfg.Speech.APIKey,
		VoiceID: cfg.Speech.VoiceID,
		BaseURL: cfg.Speech.BaseURL,
		Logger:  logger,
	})
}

// TrainingConfig converts the environment settings into a training.Config.
// The split and the forest share the configured seed.
func TrainingConfig(c config.TrainingConfig) training.Config {
	fc := forest.DefaultConfig()
	fc.Estimators = c.Estimators
	fc.Seed = c.Seed
	fc.MaxDepth = c.MaxDepth
	fc.MinSamplesSplit = c.MinSamplesSplit
	fc.MinSamplesLeaf = c.MinSamplesLeaf
	fc.MaxFeatures = c.MaxFeatures
	fc.Workers = c.Workers

	return training.Config{
		TestRatio: c.TestRatio,
		SplitSeed: c.Seed,
		Forest:    fc,
	}
}
