package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/meridian-icu/registry/pkg/common/config"
	"github.com/meridian-icu/registry/pkg/common/database"
	"github.com/meridian-icu/registry/pkg/common/logger"
	"github.com/meridian-icu/registry/pkg/observability/metrics"
	"github.com/meridian-icu/registry/pkg/pipeline"
	"github.com/meridian-icu/registry/pkg/storage"
)

// Aggregate components the API will serve. Everything here is written by
// the pipeline after suppression; nothing patient-level is reachable
// through this service.
var components = map[string]string{
	"units":                  "unit_distribution.json",
	"outcomes":               "outcome_distribution.json",
	"diagnoses":              "top_diagnoses.json",
	"specialties":            "top_specialties.json",
	"admission-sources":      "admission_sources.json",
	"discharge-destinations": "discharge_destinations.json",
	"monthly":                "monthly_admissions.json",
	"monthly-by-unit":        "monthly_by_unit.json",
	"outcome-by-unit":        "outcome_by_unit.json",
	"length-of-stay":         "length_of_stay.json",
}

type AggregatesApp struct {
	cfg   *config.Config
	cache *storage.AggregateCache
}

func main() {
	logger.Init()
	cfg := config.Load()

	app := &AggregatesApp{cfg: cfg}

	if cfg.RedisEnabled {
		client := database.OpenRedis(cfg)
		defer database.CloseRedis(client)
		app.cache = storage.NewAggregateCache(client, cfg.AggregateTTL)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", app.handleReady).Methods(http.MethodGet)
	router.HandleFunc("/metrics", app.handleMetrics).Methods(http.MethodGet)

	router.HandleFunc("/api/v1/aggregates", app.handleStatistics).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/aggregates/{component}", app.handleComponent).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/validation", app.handleValidation).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Aggregates API started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Aggregates API...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Aggregates API stopped")
}

// handleReady reports ready only once the pipeline has produced output.
func (a *AggregatesApp) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(filepath.Join(a.cfg.AggregatesDir, "complete_statistics.json")); err != nil {
		http.Error(w, `{"status":"no aggregates yet"}`, http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// handleMetrics refreshes the run-level gauges from the pipeline's
// persisted run report before serving them; the pipeline runs in its own
// short-lived process, so this is the only way its numbers reach here.
func (a *AggregatesApp) handleMetrics(w http.ResponseWriter, r *http.Request) {
	a.refreshRunMetrics()
	metrics.WritePrometheus(w)
}

func (a *AggregatesApp) refreshRunMetrics() {
	path := filepath.Join(filepath.Dir(a.cfg.RegistryFile), pipeline.RunReportFile)
	payload, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var report pipeline.RunReport
	if err := json.Unmarshal(payload, &report); err != nil {
		logger.Log.WithError(err).Warn("Invalid run report, metrics not refreshed")
		return
	}
	metrics.ObserveRun(report.FilesProcessed, report.FilesRejected,
		report.TotalRecords, report.UniquePatients, report.CompletedAt.Unix())
}

func (a *AggregatesApp) handleStatistics(w http.ResponseWriter, r *http.Request) {
	metrics.ObserveAggregateRequest()

	if a.cache != nil {
		stats, err := a.cache.Statistics(r.Context())
		if err == nil {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(stats)
			return
		}
		if !errors.Is(err, storage.ErrCacheMiss) {
			logger.Log.WithError(err).Warn("Aggregate cache read failed")
		}
	}

	a.serveFile(w, "complete_statistics.json")
}

func (a *AggregatesApp) handleComponent(w http.ResponseWriter, r *http.Request) {
	metrics.ObserveAggregateRequest()

	name, ok := components[mux.Vars(r)["component"]]
	if !ok {
		http.Error(w, "unknown aggregate", http.StatusNotFound)
		return
	}
	a.serveFile(w, name)
}

func (a *AggregatesApp) handleValidation(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(filepath.Dir(a.cfg.RegistryFile), "validation_report.json")
	a.servePath(w, path)
}

func (a *AggregatesApp) serveFile(w http.ResponseWriter, name string) {
	a.servePath(w, filepath.Join(a.cfg.AggregatesDir, name))
}

func (a *AggregatesApp) servePath(w http.ResponseWriter, path string) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "not generated yet", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("Failed to read aggregate file")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}
