package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meridian-icu/registry/pkg/analytics"
	"github.com/meridian-icu/registry/pkg/anonymizer"
	"github.com/meridian-icu/registry/pkg/common/config"
	"github.com/meridian-icu/registry/pkg/common/kafka"
	"github.com/meridian-icu/registry/pkg/common/logger"
	"github.com/meridian-icu/registry/pkg/common/models"
	"github.com/meridian-icu/registry/pkg/dlp"
	"github.com/meridian-icu/registry/pkg/normalizer"
	"github.com/meridian-icu/registry/pkg/registry"
	"github.com/meridian-icu/registry/pkg/storage"
	"github.com/meridian-icu/registry/pkg/tabular"
	"github.com/meridian-icu/registry/pkg/validator"
)

// Names of the audit artifacts written next to the registry file.
const (
	processingLogFile      = "processing_log.json"
	validationReportFile   = "validation_report.json"
	anonymizationStatsFile = "anonymization_stats.json"
)

// RunReportFile is read back by the aggregates API to expose run-level
// metrics from the most recent pipeline execution.
const RunReportFile = "run_report.json"

// Publisher is the audit-event sink. Satisfied by kafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, data map[string]interface{}) error
}

// Pipeline runs the full ingestion sequence: read, normalize, anonymize,
// validate, merge, then persist the registry and its suppressed
// aggregates. A file either merges completely or not at all; a rejected
// file never leaves partial rows behind.
type Pipeline struct {
	cfg       *config.Config
	resolver  *anonymizer.Resolver
	validator *validator.Validator
	analyzer  *analytics.Analyzer
	detector  *dlp.Detector
	master    *registry.Registry
	entries   []models.ProcessingLogEntry
	// entries carried over from previous runs; the archive only receives
	// entries added after this index.
	priorEntries int

	publisher Publisher
	archive   *registry.Repository
	cache     *storage.AggregateCache
}

type Option func(*Pipeline)

func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

func WithArchive(repo *registry.Repository) Option {
	return func(pl *Pipeline) { pl.archive = repo }
}

func WithCache(cache *storage.AggregateCache) Option {
	return func(pl *Pipeline) { pl.cache = cache }
}

func New(cfg *config.Config, resolver *anonymizer.Resolver, opts ...Option) (*Pipeline, error) {
	rules, err := dlp.LoadRules(cfg.LeakRulesFile)
	if err != nil {
		return nil, fmt.Errorf("loading leak-detection rules: %w", err)
	}
	detector, err := dlp.NewDetector(rules)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		resolver:  resolver,
		validator: validator.New(),
		analyzer:  analytics.New(cfg.SuppressThreshold),
		detector:  detector,
		master:    registry.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunReport summarizes one pipeline run over a manifest.
type RunReport struct {
	RunID          string                  `json:"run_id"`
	CompletedAt    time.Time               `json:"completed_at"`
	FilesProcessed int                     `json:"files_processed"`
	FilesRejected  int                     `json:"files_rejected"`
	RowsAdded      int                     `json:"rows_added"`
	TotalRecords   int                     `json:"total_records"`
	UniquePatients int                     `json:"unique_patients"`
	Validation     models.ValidationReport `json:"validation"`
}

// Run processes every manifest source in order against the master
// registry, then persists the registry, audit artifacts and suppressed
// aggregates. A file that fails validation is skipped and counted, not
// fatal; an unreadable registry or a missing identifier column on a
// required-identifier deployment aborts the run.
func (p *Pipeline) Run(ctx context.Context, manifest Manifest) (RunReport, error) {
	report := RunReport{RunID: uuid.New().String()}

	if err := p.loadExisting(); err != nil {
		return report, err
	}

	for _, source := range manifest.Sources {
		result, err := p.processFile(ctx, source)
		if err != nil {
			if errors.Is(err, anonymizer.ErrIdentifierColumnMissing) && p.cfg.IdentifierRequired {
				return report, err
			}
			logger.WithFields(logrus.Fields{
				"file":  source.Path,
				"error": err.Error(),
			}).Error("File rejected")
			report.FilesRejected++
			p.publish(ctx, kafka.EventFileRejected, map[string]interface{}{
				"run_id": report.RunID,
				"file":   source.Path,
				"reason": err.Error(),
			})
			continue
		}

		report.FilesProcessed++
		report.RowsAdded += result.RowsAdded
		logger.WithFields(logrus.Fields{
			"file":          source.Path,
			"new_patients":  result.NewPatients,
			"rows_added":    result.RowsAdded,
			"total_records": result.TotalRecords,
		}).Info("File merged")
		p.publish(ctx, kafka.EventFileProcessed, map[string]interface{}{
			"run_id":       report.RunID,
			"file":         source.Path,
			"new_patients": result.NewPatients,
			"rows_added":   result.RowsAdded,
		})
	}

	report.Validation = p.validator.Validate(p.master.Snapshot())
	report.TotalRecords = p.master.Len()
	report.UniquePatients = p.master.UniquePatients()
	report.CompletedAt = time.Now().UTC()

	if err := p.persist(ctx, report); err != nil {
		return report, err
	}

	p.publish(ctx, kafka.EventPipelineDone, map[string]interface{}{
		"run_id":          report.RunID,
		"files_processed": report.FilesProcessed,
		"files_rejected":  report.FilesRejected,
		"total_records":   report.TotalRecords,
		"unique_patients": report.UniquePatients,
	})
	return report, nil
}

// loadExisting restores the master registry and the identity mapping
// from the previous run's output, if any.
func (p *Pipeline) loadExisting() error {
	if _, err := os.Stat(p.cfg.RegistryFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	table, err := tabular.ReadFile(p.cfg.RegistryFile)
	if err != nil {
		return fmt.Errorf("loading existing registry: %w", err)
	}
	p.master = registry.Load(table)

	pairs := make(map[string]string)
	for _, record := range p.master.Snapshot().Records {
		if record.PatientHash != "" && record.PatientID != "" {
			pairs[record.PatientHash] = record.PatientID
		}
	}
	p.resolver.Restore(pairs)

	logger.WithFields(logrus.Fields{
		"records":  p.master.Len(),
		"patients": p.master.UniquePatients(),
	}).Info("Loaded existing registry")
	return p.loadProcessingLog()
}

func (p *Pipeline) loadProcessingLog() error {
	path := filepath.Join(filepath.Dir(p.cfg.RegistryFile), processingLogFile)
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading processing log: %w", err)
	}
	if err := json.Unmarshal(content, &p.entries); err != nil {
		return fmt.Errorf("parsing processing log: %w", err)
	}
	p.priorEntries = len(p.entries)
	return nil
}

func (p *Pipeline) processFile(ctx context.Context, source Source) (registry.MergeResult, error) {
	table, err := tabular.ReadFile(source.Path)
	if err != nil {
		return registry.MergeResult{}, err
	}

	normalizer.New(source.ColumnMapping, source.dateKinds()).Normalize(table)

	idCol := source.IdentifierColumn
	if mapped, ok := source.ColumnMapping[idCol]; ok {
		idCol = mapped
	}
	if err := p.resolver.AnonymizeTable(table, idCol); err != nil {
		return registry.MergeResult{}, err
	}

	findings := p.detector.ScanTable(table)
	for _, finding := range findings {
		logger.WithFields(logrus.Fields{
			"file":     source.Path,
			"column":   finding.Column,
			"type":     finding.Type,
			"severity": finding.Severity,
			"cells":    finding.Count,
		}).Warn("Possible identifier leak in anonymized data")
	}
	if dlp.HasHighSeverity(findings) {
		return registry.MergeResult{}, fmt.Errorf("identifier leak detected in %d columns", len(findings))
	}

	batch := registry.BatchFromTable(table)
	fileReport := p.validator.Validate(batch)
	if !fileReport.Passed() {
		if !source.AllowErrors {
			return registry.MergeResult{}, fmt.Errorf("validation failed with %d errors", len(fileReport.Issues))
		}
		for _, issue := range fileReport.Issues {
			logger.WithFields(logrus.Fields{
				"file":  source.Path,
				"check": issue.Check,
			}).Warn(issue.Message)
		}
	}
	for _, warning := range fileReport.Warnings {
		logger.WithFields(logrus.Fields{
			"file":  source.Path,
			"check": warning.Check,
		}).Warn(warning.Message)
	}

	result, err := p.master.Merge(batch, registry.Strategy(source.Strategy))
	if err != nil {
		return registry.MergeResult{}, err
	}

	p.entries = append(p.entries, models.ProcessingLogEntry{
		Timestamp:        time.Now().UTC(),
		File:             filepath.Base(source.Path),
		Rows:             table.Len(),
		IdentifierColumn: source.IdentifierColumn,
	})
	return result, nil
}

func (p *Pipeline) persist(ctx context.Context, report RunReport) error {
	outDir := filepath.Dir(p.cfg.RegistryFile)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if err := tabular.WriteCSV(p.cfg.RegistryFile, p.master.ToTable()); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	entries := p.entries
	if entries == nil {
		entries = []models.ProcessingLogEntry{}
	}
	if err := writeJSON(filepath.Join(outDir, processingLogFile), entries); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(outDir, anonymizationStatsFile), p.resolver.Stats()); err != nil {
		return err
	}
	if err := validator.WriteReport(filepath.Join(outDir, validationReportFile), report.Validation); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(outDir, RunReportFile), report); err != nil {
		return err
	}

	stats := p.analyzer.Compute(p.master.Snapshot().Records)
	if err := analytics.Export(p.cfg.AggregatesDir, stats); err != nil {
		return err
	}
	p.publish(ctx, kafka.EventRegistryUpdated, map[string]interface{}{
		"run_id":          report.RunID,
		"total_records":   report.TotalRecords,
		"unique_patients": report.UniquePatients,
	})

	if p.cache != nil {
		if err := p.cache.StoreStatistics(ctx, stats); err != nil {
			logger.Log.WithError(err).Warn("Aggregate cache not updated")
		}
	}
	if p.archive != nil {
		if err := p.archiveRun(ctx, report); err != nil {
			logger.Log.WithError(err).Warn("Registry archive not updated")
		}
	}
	return nil
}

func (p *Pipeline) archiveRun(ctx context.Context, report RunReport) error {
	if err := p.archive.ArchiveSnapshot(ctx, report.RunID, p.master); err != nil {
		return err
	}
	if err := p.archive.SaveProcessingLog(ctx, report.RunID, p.entries[p.priorEntries:]); err != nil {
		return err
	}
	return p.archive.SaveValidationReport(ctx, report.RunID, report.Validation)
}

func (p *Pipeline) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishEvent(ctx, eventType, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("Audit event not published")
	}
}

func writeJSON(path string, payload interface{}) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
