package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgallion1/epubmaker/internal/api"
	"github.com/dgallion1/epubmaker/internal/pipeline"
)

// newServeCmd creates the "serve" command.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [sources...]",
		Short: "Build once, then serve the book and a rebuild API",
		RunE:  runServe,
	}
	cmd.Flags().String("port", "8090", "HTTP listen port")
	viper.BindPFlag("port", cmd.Flags().Lookup("port"))
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{"."}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize pipeline.
	orch, err := pipeline.NewOrchestrator(cfg, args, log)
	if err != nil {
		return err
	}
	orch.Start(ctx)
	if err := orch.Submit(pipeline.NewBuild()); err != nil {
		return err
	}

	// Initialize HTTP server.
	srv := api.NewServer(orch, log, cfg)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		<-ctx.Done()
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
	}()

	log.Info("starting epubmaker", "port", cfg.Port, "name", cfg.Name)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		return err
	}
	return nil
}
