// foodloop - Perishable food inventory for retailers, NGOs and farmers
// Copyright (C) 2026  foodloop contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"google.golang.org/api/option"

	"github.com/jredh-dev/foodloop/config"
	"github.com/jredh-dev/foodloop/internal/auth"
	"github.com/jredh-dev/foodloop/internal/catalog"
	"github.com/jredh-dev/foodloop/internal/database"
	"github.com/jredh-dev/foodloop/internal/demand"
	"github.com/jredh-dev/foodloop/internal/events"
	"github.com/jredh-dev/foodloop/internal/lifecycle"
	"github.com/jredh-dev/foodloop/internal/logging"
	"github.com/jredh-dev/foodloop/internal/metrics"
	"github.com/jredh-dev/foodloop/internal/oracle"
	"github.com/jredh-dev/foodloop/internal/requests"
	"github.com/jredh-dev/foodloop/internal/web/handlers"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := pflag.Bool("version", false, "Show version information")
	envFile := pflag.String("config-env", "", "Path to a .env file (default .env)")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("foodloop-server %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
		os.Exit(0)
	}

	cfg := config.Load(*envFile)

	log, syncLog, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error(err, "server exited")
		_ = syncLog()
		os.Exit(1)
	}
	_ = syncLog()
}

func run(cfg *config.Config, log logr.Logger) (err error) {
	ctx := context.Background()
	metrics.Register()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	gen, err := newGenerator(ctx, cfg, log)
	if err != nil {
		return err
	}

	var pub events.Publisher = events.Log{Logger: log}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	defer func() { err = multierr.Append(err, pub.Close()) }()

	tokens, err := newTokenService(ctx, cfg, log)
	if err != nil {
		return err
	}

	h := handlers.New(
		catalog.New(db, oracle.NewShelfLife(gen, cfg.Oracle.ShelfLifeModel, cfg.Oracle.Timeout), pub, log.WithName("catalog"),
			catalog.Options{DefaultLocale: cfg.Oracle.DefaultLocale}),
		lifecycle.New(db, pub, log.WithName("lifecycle"), nil),
		requests.New(db, pub, log.WithName("requests"), nil),
		demand.New(db.Queries(), oracle.NewNarrator(gen, cfg.Oracle.ForecastModel, cfg.Oracle.Timeout), log.WithName("demand"),
			demand.Options{WindowDays: cfg.Demand.WindowDays, TopN: cfg.Demand.TopN}),
		auth.NewRegistry(),
		log.WithName("http"),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Generous enough for a shelf-life estimate on a new food.
	r.Use(middleware.Timeout(cfg.Oracle.Timeout + 15*time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	h.Mount(r, handlers.AuthMiddleware(tokens, db.Queries(), log.WithName("auth"), nil))

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Oracle.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error(err, "server shutdown")
		}
	}()

	log.Info("foodloop server starting", "addr", addr, "env", cfg.Server.Env, "version", version)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func newGenerator(ctx context.Context, cfg *config.Config, log logr.Logger) (oracle.Generator, error) {
	if cfg.Oracle.GeminiAPIKey == "" {
		log.Info("WARNING: GEMINI_API_KEY is empty; new foods and forecasts will report the oracle unavailable")
		return oracle.Unconfigured{}, nil
	}
	g, err := oracle.NewGemini(ctx, cfg.Oracle.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return g, nil
}

func newTokenService(ctx context.Context, cfg *config.Config, log logr.Logger) (*auth.Service, error) {
	key := cfg.JWT.SigningKey
	if key == "" {
		generated, err := auth.GenerateSigningKey()
		if err != nil {
			return nil, err
		}
		key = generated
		log.Info("WARNING: JWT_SIGNING_KEY is empty; using an ephemeral key (set JWT_SIGNING_KEY in production)")
	}

	var verifier auth.FirebaseVerifier
	if cfg.Firebase.Enabled() {
		var opts []option.ClientOption
		if cfg.Firebase.CredentialsPath != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsPath))
		}
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
		if err != nil {
			return nil, fmt.Errorf("init firebase: %w", err)
		}
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("init firebase auth: %w", err)
		}
		verifier = client
		log.Info("accepting firebase id tokens", "project", cfg.Firebase.ProjectID)
	}
	return auth.NewService(key, cfg.JWT.Issuer, verifier), nil
}
