package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/jobstore"
	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/pipeline"
)

func main() {
	_ = godotenv.Load() // best-effort: load .env if present

	log := logger.New().WithField("service", "clipforge-api")

	cfg, err := pipeline.ConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	jobs := jobstore.NewMemoryStore()
	runner := pipeline.NewRunner(cfg, jobs, log)
	server := api.New(runner, jobs, cfg, log)

	addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
	srv := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
