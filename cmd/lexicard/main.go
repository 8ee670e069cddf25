package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/conorfennell/lexicard/internal/config"
	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/importer"
	"github.com/conorfennell/lexicard/internal/logger"
	"github.com/conorfennell/lexicard/internal/scheduler"
	"github.com/conorfennell/lexicard/internal/session"
	"github.com/conorfennell/lexicard/internal/starter"
	"github.com/conorfennell/lexicard/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "lexicard: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(config.NewFlagSet("lexicard"), args)
	if err != nil {
		return err
	}

	log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(nil)
	sess := session.New(sched)
	imp := importer.New(cfg.ReposDir, sched)

	var (
		cards  []domain.Card
		report importer.Report
	)
	if len(cfg.Sources) == 0 && cfg.StarterDeck {
		log.Info("No deck sources configured, loading the starter deck")
		cards, report, err = imp.LoadFS(ctx, starter.FS(), starter.Source)
	} else {
		cards, report, err = imp.Load(ctx, cfg.Sources)
	}
	if err != nil {
		return fmt.Errorf("failed to import decks: %w", err)
	}
	added := sess.Add(cards...)
	log.Info("Decks loaded", "cards", added, "errors", len(report.Errors))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: web.NewServer(sess, sched, imp, cfg.Sources, log),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
