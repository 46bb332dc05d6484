// Command release-stream is the Lambda entry point that releases the children of
// soft-deleted parents from the DynamoDB stream of the parent tables.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/onetomany/internal/config"
	"github.com/jacentio/onetomany/internal/metrics"
	"github.com/jacentio/onetomany/relation"
	"github.com/jacentio/onetomany/store"
	"github.com/jacentio/onetomany/stream"
)

func main() {
	cfg, err := config.Load(config.NewViper(os.Getenv("CONFIG_FILE")))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	registry, err := cfg.Registry()
	if err != nil {
		logger.Error("invalid relations", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	records := store.New(dynamodb.NewFromConfig(awsCfg), cfg.Store)
	manager := relation.NewWithMetrics(records, logger, metrics.NewCollector(nil))
	handler := stream.NewHandler(manager, registry, logger).WithTables(cfg.Store.Tables)

	logger.Info("release stream starting",
		"relations", len(cfg.Relations),
		"numShards", cfg.Store.NumShards,
	)
	lambda.Start(handler.HandleParentDeleted)
}
