package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/flowchat/pkg/cache"
	"github.com/go-go-golems/flowchat/pkg/chat"
	"github.com/go-go-golems/flowchat/pkg/config"
	"github.com/go-go-golems/flowchat/pkg/graph"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowchat",
		Short: "WebSocket chat session manager bridging clients to an execution graph",
	}
	rootCmd.AddCommand(newServeCmd())
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			setupLogging(cfg.LogLevel)
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func runServe(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var backend chat.StreamBackend
	if cfg.Redis.Enabled {
		var err error
		backend, err = chat.NewRedisStreamBackend(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis stream backend")
	} else {
		backend = chat.NewMemoryStreamBackend()
	}

	var archive chat.Archive
	if cfg.ArchivePath != "" {
		dsn, err := chat.SQLiteArchiveDSNForFile(cfg.ArchivePath)
		if err != nil {
			return err
		}
		archive, err = chat.NewSQLiteArchive(dsn)
		if err != nil {
			return err
		}
		log.Info().Str("path", cfg.ArchivePath).Msg("event archive enabled")
	}

	cacheMgr := cache.NewManager()
	runner := graph.NewScriptedRunner()

	manager, err := chat.NewManager(chat.ManagerConfig{
		BaseCtx:      ctx,
		Runner:       runner,
		Cache:        cacheMgr,
		Backend:      backend,
		Archive:      archive,
		SendBuffer:   cfg.SendBuffer,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}

	srv, err := chat.NewServer(ctx, chat.ServerConfig{
		Addr:    cfg.Addr,
		Manager: manager,
		Backend: backend,
		Archive: archive,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
