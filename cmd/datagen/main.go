package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/siqueiraa/TabFlow/pkg/config"
	"github.com/siqueiraa/TabFlow/pkg/duck"
	"github.com/siqueiraa/TabFlow/pkg/faker"
	"github.com/siqueiraa/TabFlow/pkg/kafka"
)

func main() {
	rows := flag.Int("rows", 10000, "number of transactions to generate")
	seed := flag.Int64("seed", 42, "random seed")
	out := flag.String("out", "data/transactions.csv", "output file (.csv, .parquet or .json)")
	start := flag.String("start", "2024-01-01", "first day covered by created_at")
	publish := flag.Bool("kafka", false, "also publish the rows to output.kafka from the config file")
	flag.Parse()

	logger := zap.Must(zap.NewDevelopment()).Named("datagen")
	defer logger.Sync() //nolint:errcheck

	first, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		logger.Fatal("Invalid start date", zap.String("start", *start), zap.Error(err))
	}

	ds := faker.Transactions(faker.Options{Rows: *rows, Seed: *seed, Start: first})
	ctx := context.Background()

	duckEngine, err := duck.NewDuckDBEngine("", "", logger)
	if err != nil {
		logger.Fatal("Failed to init DuckDB", zap.Error(err))
	}
	defer duckEngine.Close()

	if err := duckEngine.Write(ctx, ds, *out); err != nil {
		logger.Fatal("Failed to write dataset", zap.Error(err))
	}

	if *publish {
		if err := config.LoadEnv(); err != nil {
			logger.Fatal("Failed to load .env", zap.Error(err))
		}
		cfg, err := config.Load(config.Path("config.yaml"))
		if err != nil {
			logger.Fatal("Failed to load config", zap.Error(err))
		}
		k := cfg.Output.Kafka
		producer, err := kafka.NewProducer(k, logger)
		if err != nil {
			logger.Fatal("Failed to create Kafka producer", zap.Error(err))
		}
		defer producer.Close()
		if _, err := producer.PublishDataset(ctx, k.Topic, ds, "transaction_id"); err != nil {
			logger.Error("Publish failed", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("Transactions generated", zap.Int("rows", ds.Len()), zap.String("path", *out))
}
