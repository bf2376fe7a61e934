package main

import (
	"context"
	"flag"

	"github.com/meridian-icu/registry/pkg/anonymizer"
	"github.com/meridian-icu/registry/pkg/common/config"
	"github.com/meridian-icu/registry/pkg/common/database"
	"github.com/meridian-icu/registry/pkg/common/kafka"
	"github.com/meridian-icu/registry/pkg/common/logger"
	"github.com/meridian-icu/registry/pkg/pipeline"
	"github.com/meridian-icu/registry/pkg/registry"
	"github.com/meridian-icu/registry/pkg/salt"
	"github.com/meridian-icu/registry/pkg/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	manifestPath := flag.String("manifest", cfg.ManifestFile, "path to the source manifest")
	flag.Parse()

	manifest, err := pipeline.LoadManifest(*manifestPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load manifest")
	}

	store, err := salt.Load(cfg.SaltFile)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load hashing salt")
	}
	resolver := anonymizer.NewResolver(store.Value(), cfg.SurrogatePrefix)

	var opts []pipeline.Option

	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, "registry-pipeline")
		defer producer.Close()
		opts = append(opts, pipeline.WithPublisher(producer))
	}

	if cfg.PostgresEnabled {
		db, err := database.OpenPostgres(cfg)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to connect to postgres")
		}
		defer database.ClosePostgres(db)

		repo := registry.NewRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate archive tables")
		}
		opts = append(opts, pipeline.WithArchive(repo))
	}

	if cfg.RedisEnabled {
		client := database.OpenRedis(cfg)
		defer database.CloseRedis(client)
		opts = append(opts, pipeline.WithCache(storage.NewAggregateCache(client, cfg.AggregateTTL)))
	}

	p, err := pipeline.New(cfg, resolver, opts...)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to build pipeline")
	}

	report, err := p.Run(context.Background(), manifest)
	if err != nil {
		logger.Log.WithError(err).Fatal("pipeline run failed")
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id":          report.RunID,
		"files_processed": report.FilesProcessed,
		"files_rejected":  report.FilesRejected,
		"total_records":   report.TotalRecords,
		"unique_patients": report.UniquePatients,
		"errors":          len(report.Validation.Issues),
		"warnings":        len(report.Validation.Warnings),
	}).Info("Pipeline run completed")
}
