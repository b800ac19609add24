package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/siqueiraa/TabFlow/pkg/avro"
	"github.com/siqueiraa/TabFlow/pkg/config"
	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/duck"
	"github.com/siqueiraa/TabFlow/pkg/engine"
	"github.com/siqueiraa/TabFlow/pkg/kafka"
	"github.com/siqueiraa/TabFlow/pkg/pipeline"
	"github.com/siqueiraa/TabFlow/pkg/stats"
	"github.com/siqueiraa/TabFlow/pkg/tracking"
)

func main() {
	bootstrap := zap.Must(zap.NewProduction())

	if err := config.LoadEnv(); err != nil {
		bootstrap.Fatal("Failed to load .env", zap.Error(err))
	}
	configPath := config.Path("config.yaml")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		bootstrap.Fatal("Failed to load config", zap.String("path", configPath), zap.Error(err))
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		bootstrap.Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck // stderr sync errors are not actionable

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, &cfg, logger)
	stop()
	if err != nil {
		logger.Error("TabFlow failed", zap.Error(err))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

// run loads the input, applies the transformation spec and writes every
// configured output, reporting to the tracking store when enabled.
func run(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (err error) {
	spec, err := pipeline.LoadFromFile(cfg.Transform.Spec)
	if err != nil {
		return fmt.Errorf("load transform spec: %w", err)
	}

	duckEngine, err := duck.NewDuckDBEngine("", cfg.Engine.DuckDBMemory, logger)
	if err != nil {
		return err
	}
	defer duckEngine.Close()

	var tr *tracking.Run
	if cfg.Tracking.Enabled {
		store, openErr := tracking.Open(ctx, cfg.Tracking, logger)
		if openErr != nil {
			return openErr
		}
		defer store.Close()

		name := filepath.Base(cfg.Transform.Spec)
		if tr, err = store.StartRun(cfg.Tracking.Experiment, name); err != nil {
			return err
		}
		logger = logger.With(zap.String("run_id", tr.ID()))
		defer func() {
			status := tracking.StatusFinished
			if err != nil {
				status = tracking.StatusFailed
			}
			if endErr := tr.End(status); endErr != nil {
				logger.Warn("Failed to end run", zap.Error(endErr))
			}
		}()
	}

	logger.Info("Starting TabFlow",
		zap.String("input", cfg.Input.Path),
		zap.String("spec", cfg.Transform.Spec),
	)

	ds, err := duckEngine.Load(ctx, cfg.Input.Path)
	if err != nil {
		return err
	}
	if tr != nil {
		if err := tr.LogInput(ds, cfg.Input.Path, "raw"); err != nil {
			return err
		}
	}

	out, err := engine.New(spec, logger).Run(ctx, ds)
	if err != nil {
		return err
	}

	if err := writeOutputs(ctx, cfg, duckEngine, out, logger); err != nil {
		return err
	}

	if tr != nil {
		if err := report(ctx, cfg, tr, spec, out); err != nil {
			return err
		}
	}
	logger.Info("TabFlow finished", zap.Int("rows", out.Len()), zap.Int("columns", len(out.Columns())))
	return nil
}

func writeOutputs(ctx context.Context, cfg *config.AppConfig, duckEngine *duck.DBEngine, out *dataset.Dataset, logger *zap.Logger) error {
	if cfg.Output.Path != "" {
		if err := duckEngine.Write(ctx, out, cfg.Output.Path); err != nil {
			return err
		}
	}

	if cfg.Output.Avro != "" {
		if err := avro.WriteOCFFile(cfg.Output.Avro, out); err != nil {
			return err
		}
		logger.Info("Avro container written", zap.String("path", cfg.Output.Avro))
	}

	if k := cfg.Output.Kafka; k.Enabled {
		producer, err := kafka.NewProducer(k, logger)
		if err != nil {
			return err
		}
		defer producer.Close()
		if _, err := producer.PublishDataset(ctx, k.Topic, out, k.Key); err != nil {
			return err
		}
	}
	return nil
}

// report logs the transformed dataset, its statistics and the spec that
// produced it.
func report(ctx context.Context, cfg *config.AppConfig, tr *tracking.Run, spec *pipeline.Spec, out *dataset.Dataset) error {
	if err := tr.LogInput(out, cfg.Output.Path, "transformed"); err != nil {
		return err
	}

	describe, _ := stats.Serializable(stats.Describe(out)).(map[string]any)
	if err := tr.LogDict("describe", describe); err != nil {
		return err
	}
	correlation, _ := stats.Serializable(stats.Report(stats.Correlation(out))).(map[string]any)
	if err := tr.LogDict("correlation", correlation); err != nil {
		return err
	}

	specYAML, err := spec.Marshal()
	if err != nil {
		return err
	}
	tmp, err := os.MkdirTemp("", "tabflow-spec-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)
	specPath := filepath.Join(tmp, "spec.yaml")
	if err := os.WriteFile(specPath, specYAML, 0o600); err != nil {
		return err
	}
	if err := tr.LogArtifact(ctx, specPath, "spec.yaml"); err != nil {
		return err
	}

	for _, p := range []string{cfg.Output.Path, cfg.Output.Avro} {
		if p == "" {
			continue
		}
		if err := tr.LogArtifact(ctx, p, filepath.Base(p)); err != nil {
			return err
		}
	}
	return nil
}
