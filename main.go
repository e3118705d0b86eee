package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/speechcoach/pipeline/api"
	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/bus"
	"github.com/speechcoach/pipeline/config"
	"github.com/speechcoach/pipeline/engines"
	"github.com/speechcoach/pipeline/scoring"
	"github.com/speechcoach/pipeline/stages"
	"github.com/speechcoach/pipeline/task"
	"github.com/speechcoach/pipeline/worker"
)

func main() {
	root := &cobra.Command{
		Use:          "speechcoach",
		Short:        "Speech analysis pipeline coordination service",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), scoreCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&log.JSONFormatter{})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func redisClient(cfg *config.Root) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			rdb, err := redisClient(cfg)
			if err != nil {
				return err
			}
			defer rdb.Close()

			nc, err := nats.Connect(cfg.NATS.URL,
				nats.RetryOnFailedConnect(true),
				nats.MaxReconnects(-1))
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			defer nc.Drain()

			mc, err := minio.New(cfg.S3.Endpoint, &minio.Options{
				Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
				Secure: cfg.S3.UseSSL,
			})
			if err != nil {
				return fmt.Errorf("connect object storage: %w", err)
			}

			store := artifact.NewRedisStore(rdb, cfg.Redis.DataTTL)
			tasks := task.NewRedisRegistry(rdb, cfg.Redis.TaskTTL)
			eventBus := bus.NewNATSBus(nc)
			objects := engines.NewObjectStore(mc, cfg.S3.Bucket, 0)

			transcriber := engines.NewTranscriber(cfg.Engines.ASR.URL, cfg.Engines.ASR.Timeout)
			prosody := engines.NewProsodyAnalyzer(cfg.Engines.Prosody.URL, cfg.Engines.Prosody.Timeout)
			grammar := engines.NewGrammarChecker(cfg.Engines.Grammar.URL, cfg.Engines.Grammar.Timeout)
			embedder := engines.NewEmbedder(cfg.Engines.Embedding.URL, cfg.Engines.Embedding.Timeout)
			transcoder := engines.NewTranscoder(cfg.Engines.Transcoder.URL, cfg.Engines.Transcoder.Timeout)
			renderer := engines.NewRenderer(cfg.Engines.Renderer.URL, cfg.Engines.Renderer.Timeout)

			coordinator := worker.NewCoordinator(tasks, store, eventBus, cfg.Workers.MaxConcurrent)
			search := stages.NewSearch(embedder, store)

			drillStage, err := stages.NewDrillStage(store)
			if err != nil {
				return err
			}

			server := api.NewServer(coordinator, tasks, store, eventBus, search, transcriber)
			server.Register(stages.NewTranscription(transcriber),
				func() worker.Request { return &stages.TranscriptionRequest{} })
			server.Register(stages.NewProsodyStage(prosody, store, cfg.Features.TimeWindow, cfg.Features.Overlap),
				func() worker.Request { return &stages.ProsodyRequest{} })
			server.Register(stages.NewFluencyStage(grammar, store),
				func() worker.Request { return &stages.FluencyRequest{} })
			server.Register(stages.NewScoringStage(scoring.NewEngine(store)),
				func() worker.Request { return &stages.ScoringRequest{} })
			server.Register(drillStage,
				func() worker.Request { return &stages.DrillRequest{} })
			server.Register(stages.NewClipStage(transcoder, objects, store),
				func() worker.Request { return &stages.ClipRequest{} })
			server.Register(stages.NewReportStage(renderer, objects, store),
				func() worker.Request { return &stages.ReportRequest{} })

			srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: server.Handler()}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("http shutdown incomplete")
			}
			coordinator.Wait()
			return nil
		},
	}
}

func scoreCmd() *cobra.Command {
	var includeUncertainty bool

	cmd := &cobra.Command{
		Use:   "score <session-id>",
		Short: "Fuse the stored analysis artifacts for a session and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			rdb, err := redisClient(cfg)
			if err != nil {
				return err
			}
			defer rdb.Close()

			engine := scoring.NewEngine(artifact.NewRedisStore(rdb, cfg.Redis.DataTTL))
			result, err := engine.Fuse(cmd.Context(), scoring.Request{
				SessionID:          args[0],
				IncludeUncertainty: includeUncertainty,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().BoolVar(&includeUncertainty, "uncertainty", false, "include uncertainty bands")
	return cmd
}
