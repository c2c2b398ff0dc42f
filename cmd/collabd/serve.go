package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/labsim/collab/internal/config"
	"github.com/labsim/collab/pkg/archive"
	"github.com/labsim/collab/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the collaboration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger := setupLogging(cfg.Log)

			var archiver archive.Archiver
			if cfg.Archive.Bucket != "" {
				archiver = archive.NewS3Archiver(newS3Client(cfg.Archive),
					cfg.Archive.Bucket, cfg.Archive.Prefix, logger)
				logger.Info("transcript archiving enabled",
					"bucket", cfg.Archive.Bucket,
					"prefix", cfg.Archive.Prefix)
			}

			srv := server.New(&server.Config{
				Addr:              cfg.Server.Addr,
				ReadTimeout:       cfg.Server.ReadTimeout.Std(),
				WriteTimeout:      cfg.Server.WriteTimeout.Std(),
				HeartbeatInterval: cfg.Server.HeartbeatInterval.Std(),
				ShutdownTimeout:   cfg.Server.ShutdownTimeout.Std(),
				SweepInterval:     cfg.Server.SweepInterval.Std(),
				MaxMessageSize:    cfg.Server.MaxMessageSize,
				HistoryLimit:      cfg.Server.HistoryLimit,
				MaxSessions:       cfg.Server.MaxSessions,
			}, &server.Options{
				Logger:   logger,
				Archiver: archiver,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func setupLogging(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// newS3Client builds the archive's S3 client from static configuration.
// A custom endpoint (MinIO and friends) switches to path-style addressing.
func newS3Client(cfg config.ArchiveConfig) *s3.Client {
	opts := s3.Options{Region: cfg.Region}

	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		}
		opts.Credentials = aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil })
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return s3.New(opts)
}
