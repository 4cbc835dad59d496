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

	"github.com/spf13/cobra"

	"github.com/hickeroar/naivebayes/bayes"
	"github.com/hickeroar/naivebayes/metrics"
	"github.com/hickeroar/naivebayes/tokenizer"
)

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var (
	makeSignalChannel = func() chan os.Signal { return make(chan os.Signal, 1) }
	notifySignals     = func(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }
	newServer         = func(addr string, handler http.Handler) httpServer {
		return &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       30 * time.Second,
		}
	}
)

func newServeCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classifier over HTTP",
		Long: `Serve loads the model from the configured store, serves the HTTP API and
saves the model again on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), app)
		},
	}

	cmd.Flags().String("port", "8000", "the port the server should listen on")
	cmd.Flags().String("auth-token", "", "require this bearer token on non-probe endpoints")
	_ = app.viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = app.viper.BindPFlag("server.auth_token", cmd.Flags().Lookup("auth-token"))

	return cmd
}

func runServe(ctx context.Context, app *application) error {
	cfg := app.cfg

	tok, err := tokenizer.New(cfg.Tokenizer)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Model)
	if err != nil {
		return err
	}
	defer store.Close()

	classifier := bayes.NewClassifier[string, string](bayes.WithSmoothing(cfg.Classifier.Smoothing))
	if err := store.Load(ctx, classifier); err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	api := NewClassifierAPI(classifier, tok, metrics.New(), app.logger)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	server := newServer(":"+cfg.Server.Port, withAuthorizationToken(mux, cfg.Server.AuthToken))
	app.logger.Info("server is listening",
		"port", cfg.Server.Port,
		"categories", len(classifier.Categories()),
		"auth", cfg.Server.AuthToken != "",
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	api.ready.Store(true)

	sigCh := makeSignalChannel()
	notifySignals(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		app.logger.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		api.ready.Store(false)
		return fmt.Errorf("listen: %w", err)
	}
	api.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	saveErr := store.Save(shutdownCtx, classifier)
	if saveErr != nil {
		saveErr = fmt.Errorf("save model: %w", saveErr)
	} else {
		app.logger.Info("model saved", "samples", classifier.TotalSamples())
	}

	return errors.Join(shutdownErr, saveErr)
}
