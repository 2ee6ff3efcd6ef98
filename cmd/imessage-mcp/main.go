// imessage-mcp serves a local MCP endpoint over the iMessage chat database.
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
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cyberpapiii/imessage-max-sub000/internal/config"
	"github.com/cyberpapiii/imessage-max-sub000/internal/engine"
	"github.com/cyberpapiii/imessage-max-sub000/internal/imessage"
	"github.com/cyberpapiii/imessage-max-sub000/internal/logctx"
	"github.com/cyberpapiii/imessage-max-sub000/internal/mcp"
	"github.com/cyberpapiii/imessage-max-sub000/internal/sessions"
	"github.com/cyberpapiii/imessage-max-sub000/internal/streaminghttp"
	"github.com/cyberpapiii/imessage-max-sub000/internal/tools"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "imessage-mcp",
		Short:         "Local MCP server for the iMessage chat database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	// A .env beside the binary is a convenience for local runs; absence is
	// not an error.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)

	db, err := imessage.Open(cfg.ChatDBPath)
	if err != nil {
		return fmt.Errorf("open chat database: %w", err)
	}
	defer db.Close()

	var resolver imessage.ContactResolver = imessage.NopResolver{}
	if cfg.AddressBookPath != "" {
		resolver = imessage.NewAddressBookResolver(cfg.AddressBookPath)
	}

	toolset := tools.NewToolset(tools.Deps{
		DB:       db,
		Resolver: resolver,
		Log:      log,
	})

	fanout := imessage.NewChangeFanout()

	handler := streaminghttp.NewHandler(cfg.EndpointPath,
		func(out func(ctx context.Context, payload []byte)) (func(context.Context, <-chan []byte) error, func()) {
			changes, cancel := fanout.Subscribe()
			eng := engine.New(toolset,
				engine.WithLogger(log),
				engine.WithOutput(out),
				engine.WithServerInfo(mcp.ImplementationInfo{Name: "imessage-mcp", Version: version}),
				engine.WithChangeFeed(changes, cfg.ChatDBPath),
			)
			return eng.Run, cancel
		},
		streaminghttp.WithLogger(log),
		streaminghttp.WithBaseContext(ctx),
		streaminghttp.WithRequestTimeout(cfg.RequestTimeout),
		streaminghttp.WithKeepAliveInterval(cfg.KeepAliveInterval),
		streaminghttp.WithSessionOptions(
			sessions.WithMaxSessions(cfg.MaxSessions),
			sessions.WithIdleTimeout(cfg.SessionIdleTimeout),
			sessions.WithSweepInterval(cfg.SweepInterval),
		),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := handler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.WatchDB {
		watcher := imessage.NewWatcher(cfg.ChatDBPath, 0)
		g.Go(func() error {
			err := watcher.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			err := fanout.Run(gctx, watcher.Events())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		log.Info("server.listen", slog.String("addr", cfg.ListenAddr), slog.String("path", cfg.EndpointPath))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logctx.Handler{Handler: inner})
}
