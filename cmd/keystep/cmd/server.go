package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/mwalcott/keystep/api"
	"github.com/mwalcott/keystep/config"
	"github.com/mwalcott/keystep/identity"
	"github.com/mwalcott/keystep/mfa"
	"github.com/mwalcott/keystep/notify"
	bboltstorage "github.com/mwalcott/keystep/storage/bbolt"
)

var (
	tlsCert string
	tlsKey  string
	devSend bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the MFA service server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		store, err := bboltstorage.NewStoreFromFile(filepath.Join(cfg.DataDir, "keystep.db"), nil)
		if err != nil {
			return fmt.Errorf("failed to open MFA storage: %w", err)
		}
		defer store.Close()

		vault, err := mfa.NewVault(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("failed to initialize secret vault: %w", err)
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		var opts []mfa.Option
		switch {
		case cfg.SMTPHost != "":
			sender, err := notify.NewSMTPSender(notify.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
			})
			if err != nil {
				return fmt.Errorf("invalid SMTP configuration: %w", err)
			}
			opts = append(opts, mfa.WithSender(sender))
		case devSend:
			opts = append(opts, mfa.WithSender(&notify.LogSender{Logger: logger}))
		}

		ctrl := mfa.NewController(store, vault, cfg.Issuer, opts...)
		a := api.New(ctrl, identity.HeaderProvider{}, cfg.CookieSecret, api.WithLogger(logger))

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		useTLS := tlsCert != "" && tlsKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (data: %s)...\n", cfg.Port, cfg.DataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().BoolVar(&devSend, "dev-sender", false, "Log verification codes instead of delivering them (development only)")
}
