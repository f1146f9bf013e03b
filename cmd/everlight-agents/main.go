// ABOUTME: Entry point for the everlight agent service
// ABOUTME: Serves the message endpoint and ships seed/send/health commands

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tommyyliu/everlight-agents/internal/agent"
	"github.com/tommyyliu/everlight-agents/internal/comms"
	"github.com/tommyyliu/everlight-agents/internal/config"
	"github.com/tommyyliu/everlight-agents/internal/embedding"
	"github.com/tommyyliu/everlight-agents/internal/endpoint"
	"github.com/tommyyliu/everlight-agents/internal/seed"
	"github.com/tommyyliu/everlight-agents/internal/store"
	"github.com/tommyyliu/everlight-agents/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                      _ _       _     _
  _____   _____ _ __ | (_) __ _| |__ | |_
 / _ \ \ / / _ \ '__|| | |/ _' | '_ \| __|
|  __/\ V /  __/ |   | | | (_| | | | | |_
 \___| \_/ \___|_|   |_|_|\__, |_| |_|\__|
                          |___/   agents
`

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "everlight-agents",
		Short: "Multi-agent messaging and memory backend",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML (optional; env vars always apply)")

	root.AddCommand(serveCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent service HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Listen:    %s\n", cfg.Server.Addr())
	green.Print("    ▶ ")
	backend := "sqlite"
	if cfg.Database.IsPostgres() {
		backend = "postgres"
	}
	fmt.Printf("Database:  %s\n", backend)
	green.Print("    ▶ ")
	transport := "cloud"
	if cfg.Comms.LocalDevelopment {
		transport = "local"
	}
	fmt.Printf("Transport: %s\n", transport)
	if cfg.Testing {
		yellow := color.New(color.FgYellow)
		yellow.Println("    ▶ test mode: external sends disabled")
	}
	fmt.Println()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	local := comms.NewLocalTransport(cfg.Comms.AgentEndpointURL)
	var cloud comms.Transport
	if cfg.Comms.GoogleCloudProject != "" {
		ct, err := comms.NewCloudTransport(ctx,
			cfg.Comms.GoogleCloudProject,
			cfg.Comms.GoogleCloudLocation,
			cfg.Comms.AgentEndpointURL,
			cfg.Comms.AgentServiceToken)
		if err != nil {
			return fmt.Errorf("creating cloud transport: %w", err)
		}
		defer ct.Close()
		cloud = ct
	} else if !cfg.Comms.LocalDevelopment {
		logger.Warn("no GCP project configured; sends will fail unless a local transport is requested")
	}

	dispatcher := comms.NewDispatcher(st, local, cloud, cfg.Comms.LocalDevelopment)
	directory := store.NewDirectory(st)
	registry := tools.DefaultRegistry()
	audit := tools.NewAuditLog(cfg.Tools.EvalLogPath)

	factory := agent.NewFactory(st, directory, dispatcher, embedding.NewLocal(),
		registry, agent.NewEchoRunner(), audit, cfg.Testing)

	server := endpoint.New(st, factory, cfg.Metrics.Enabled, cfg.Metrics.Path)
	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: server.Router(),
	}

	logger.Info("starting everlight-agents",
		"addr", cfg.Server.Addr(),
		"database", backend,
		"transport", transport,
		"testing", cfg.Testing)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	server.Wait()
	return nil
}

func seedCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a user with the default agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			slog.SetDefault(setupLogger(cfg.Logging))

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			user := &store.User{Email: email}
			if err := st.CreateUser(ctx, user); err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			if err := seed.CreateDefaultAgents(ctx, st, user, nil); err != nil {
				return err
			}
			fmt.Printf("Seeded user %s (%s) with default agents.\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email for the new user")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func sendCmd() *cobra.Command {
	var (
		userID  string
		channel string
		message string
		sender  string
		runAt   string
		mode    string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Record and dispatch a channel message",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			slog.SetDefault(setupLogger(cfg.Logging))

			ctx := cmd.Context()
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("parsing user id: %w", err)
			}

			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			local := comms.NewLocalTransport(cfg.Comms.AgentEndpointURL)
			var cloud comms.Transport
			if cfg.Comms.GoogleCloudProject != "" {
				ct, err := comms.NewCloudTransport(ctx,
					cfg.Comms.GoogleCloudProject,
					cfg.Comms.GoogleCloudLocation,
					cfg.Comms.AgentEndpointURL,
					cfg.Comms.AgentServiceToken)
				if err != nil {
					return fmt.Errorf("creating cloud transport: %w", err)
				}
				defer ct.Close()
				cloud = ct
			}
			dispatcher := comms.NewDispatcher(st, local, cloud, cfg.Comms.LocalDevelopment)

			req := comms.SendRequest{
				UserID:  uid,
				Channel: channel,
				Message: message,
				Sender:  sender,
				Mode:    mode,
			}
			if runAt != "" {
				t, err := time.Parse(time.RFC3339, runAt)
				if err != nil {
					return fmt.Errorf("parsing run-at: %w", err)
				}
				req.RunAt = &t
			}

			result := dispatcher.Send(ctx, req)
			out, _ := json.Marshal(result)
			fmt.Println(string(out))
			if result.Status != comms.StatusSent {
				return fmt.Errorf("send failed: %s", result.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user UUID")
	cmd.Flags().StringVar(&channel, "channel", "", "target channel")
	cmd.Flags().StringVar(&message, "message", "", "message content")
	cmd.Flags().StringVar(&sender, "sender", "cli", "sender name")
	cmd.Flags().StringVar(&runAt, "run-at", "", "RFC3339 time for scheduled delivery")
	cmd.Flags().StringVar(&mode, "mode", "", "transport override: local or cloud")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the running service's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			url := fmt.Sprintf("http://localhost%s/health", cfg.Server.Addr())
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("creating request: %w", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
			}
			fmt.Println("healthy")
			return nil
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.IsPostgres() {
		return store.NewPostgresStore(ctx, cfg.Database.URL)
	}
	return store.NewSQLiteStore(cfg.Database.URL)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{level: level}
	}
	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{level: h.level, attrs: newAttrs, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{level: h.level, attrs: h.attrs, groups: newGroups}
}
