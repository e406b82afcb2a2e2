// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coretrusts/amdb"
)

const errKey = "error"

var (
	logger *slog.Logger
	db     *amdb.DB
)

func main() {
	cfg, err := amdb.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	srvCfg := loadServerConfig()

	debug := flag.Bool("d", false, "enable debug logging")
	port := flag.String("p", srvCfg.Port, "health checks port")
	bind := flag.String("bind", srvCfg.Bind, "interface to bind on")

	flag.Usage = func() {
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	logOptions := &slog.HandlerOptions{}
	if cfg.Debug || *debug {
		logOptions.Level = slog.LevelDebug
		logOptions.AddSource = true
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, logOptions))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err = amdb.Open(ctx, cfg)
	if err != nil {
		logger.With(errKey, err).Error("error opening amdb")
		os.Exit(1)
	}

	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		// Always returns OK as long as the process is running; liveness
		// probes should never depend on downstream health.
		fmt.Fprintf(w, "OK\n")
	})
	http.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if db == nil {
			http.Error(w, "amdb not opened", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "OK\n")
	})

	httpServer := &http.Server{
		Addr:              listenAddr(*bind, *port),
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.With(errKey, err).Error("http listener error")
			os.Exit(1)
		}
	}()

	var shutdownWG sync.WaitGroup
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("amdbd ready", "addr", listenAddr(*bind, *port))

	<-done
	logger.Debug("beginning graceful shutdown")

	cancel()

	shutdownWG.Add(1)
	go func() {
		defer shutdownWG.Done()
		if err := db.Flush(context.Background()); err != nil {
			logger.With(errKey, err).Error("error flushing on shutdown")
		}
		if err := db.Close(); err != nil {
			logger.With(errKey, err).Error("error closing amdb")
		}
	}()
	shutdownWG.Wait()

	if err := httpServer.Close(); err != nil {
		logger.With(errKey, err).Error("http listener error on close")
	}
}
