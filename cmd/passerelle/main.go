// CLAUDE:SUMMARY Entry point for the passerelle MCP server — explicit wiring, stdio or QUIC transport, loopback admin listener.
// Command passerelle serves enterprise backend tools over MCP: wiki pages
// with conflict-safe text replacement, work items, records metadata and
// content extraction, broker inspection, design-file inventories.
//
// Configuration comes from one yaml file (-config flag or
// PASSERELLE_CONFIG, default passerelle.yaml); secrets come from the
// environment:
//
//	DEVOPS_TOKEN       personal access token for the DevOps platform
//	RECORDS_TOKEN      records platform token (when records is configured)
//	BROKER_PASSWORD    management API password (when broker is configured)
//	DESIGNFILES_TOKEN  design-file API token (when designfiles is configured)
//
// MCP is served on stdio by default; MCP_TRANSPORT=quic serves QUIC on
// MCP_QUIC_ADDR instead (TLS_CERT/TLS_KEY, self-signed when unset). A
// loopback admin listener exposes /healthz, /readyz and bcrypt-protected
// /api/audit and /api/projects. Editing the config file swaps the project
// allow-list and the write gates without a restart.
package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/passerelle/audit"
	"github.com/hazyhaar/passerelle/broker"
	"github.com/hazyhaar/passerelle/dbopen"
	"github.com/hazyhaar/passerelle/designfiles"
	"github.com/hazyhaar/passerelle/devops"
	"github.com/hazyhaar/passerelle/internal/config"
	"github.com/hazyhaar/passerelle/kit"
	"github.com/hazyhaar/passerelle/mcpquic"
	"github.com/hazyhaar/passerelle/records"
	"github.com/hazyhaar/passerelle/shield"
	"github.com/hazyhaar/passerelle/watch"
	"github.com/hazyhaar/passerelle/wikisync"
)

func main() {
	configPath := flag.String("config", "", "path to passerelle.yaml (or PASSERELLE_CONFIG)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (or LOG_LEVEL)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = env("PASSERELLE_CONFIG", "passerelle.yaml")
	}
	level := *logLevel
	if level == "" {
		level = env("LOG_LEVEL", "info")
	}

	// Stdout carries the MCP protocol when serving stdio; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, path); err != nil {
		logger.Error("passerelle: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if h := os.Getenv("ADMIN_PASSWORD_HASH"); h != "" {
		cfg.Admin.PasswordHash = h
	}

	// Audit trail.
	auditDB, err := dbopen.Open(cfg.AuditDB, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("audit db: %w", err)
	}
	defer auditDB.Close()

	auditor := audit.NewSQLiteLogger(auditDB, audit.WithLogger(logger))
	if err := auditor.Init(); err != nil {
		return fmt.Errorf("audit init: %w", err)
	}
	defer auditor.Close()

	// DevOps client and the wiki sync core.
	pat := os.Getenv("DEVOPS_TOKEN")
	if cfg.DevOps.BaseURL == "" || pat == "" {
		return fmt.Errorf("devops base_url and DEVOPS_TOKEN are required")
	}
	devOpts := []devops.Option{devops.WithLogger(logger)}
	if cfg.DevOps.PublicOnly {
		devOpts = append(devOpts, devops.WithPublicOnly())
	}
	devClient, err := devops.NewClient(cfg.DevOps.BaseURL, pat, devOpts...)
	if err != nil {
		return fmt.Errorf("devops client: %w", err)
	}

	svc, err := wikisync.New(devClient, &cfg.Wiki, logger)
	if err != nil {
		return fmt.Errorf("wiki sync: %w", err)
	}

	// One MCP server carries every tool.
	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "passerelle",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(mcpSrv, auditor)
	devClient.RegisterMCP(mcpSrv, auditor)

	var recClient *records.Client
	if cfg.Records != nil {
		token := os.Getenv("RECORDS_TOKEN")
		if token == "" {
			return fmt.Errorf("records is configured but RECORDS_TOKEN is empty")
		}
		recClient, err = records.NewClient(cfg.Records, token, records.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("records client: %w", err)
		}
		recClient.RegisterMCP(mcpSrv, auditor)
	}

	if cfg.Broker != nil {
		password := os.Getenv("BROKER_PASSWORD")
		if password == "" {
			return fmt.Errorf("broker is configured but BROKER_PASSWORD is empty")
		}
		brkClient, err := broker.NewClient(cfg.Broker, password, broker.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("broker client: %w", err)
		}
		brkClient.RegisterMCP(mcpSrv)
	}

	if cfg.DesignFiles != nil {
		token := os.Getenv("DESIGNFILES_TOKEN")
		if token == "" {
			return fmt.Errorf("designfiles is configured but DESIGNFILES_TOKEN is empty")
		}
		dfClient, err := designfiles.NewClient(cfg.DesignFiles, token, designfiles.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("designfiles client: %w", err)
		}
		dfClient.RegisterMCP(mcpSrv)
	}

	// Config hot reload: the allow-list and write gates swap without a
	// restart. A failed reload keeps the running configuration.
	watcher, err := watch.New(configPath, watch.Options{Logger: logger})
	if err != nil {
		logger.Warn("config watch disabled", "error", err)
	} else {
		defer watcher.Close()
		go watcher.OnChange(ctx, func() error {
			fresh, err := config.Load(configPath)
			if err != nil {
				return err
			}
			svc.SetAllowedProjects(fresh.Wiki.AllowedProjects)
			svc.SetWritesEnabled(fresh.Wiki.WritesEnabled)
			if recClient != nil && fresh.Records != nil {
				recClient.SetWritesEnabled(fresh.Records.WritesEnabled)
			}
			logger.Info("config reloaded",
				"allowed_projects", len(fresh.Wiki.AllowedProjects),
				"writes_enabled", fresh.Wiki.WritesEnabled)
			return nil
		})
	}

	// Admin listener.
	adminSrv := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           adminRouter(cfg.Admin, logger, auditDB, auditor, svc),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("admin listener starting", "addr", cfg.Admin.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin listener", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin shutdown", "error", err)
		}
	}()

	// The audit trail records an actor when the launcher names one.
	if actor := os.Getenv("MCP_ACTOR"); actor != "" {
		ctx = kit.WithActor(ctx, actor)
	}

	if env("MCP_TRANSPORT", "") == "quic" {
		return serveQUIC(ctx, logger, mcpSrv)
	}

	logger.Info("serving MCP on stdio")
	err = mcpSrv.Run(kit.WithTransport(ctx, "mcp_stdio"),
		&mcp.IOTransport{Reader: os.Stdin, Writer: os.Stdout})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio session: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func serveQUIC(ctx context.Context, logger *slog.Logger, mcpSrv *mcp.Server) error {
	addr := env("MCP_QUIC_ADDR", ":9444")
	certFile := os.Getenv("TLS_CERT")
	keyFile := os.Getenv("TLS_KEY")

	var tlsCfg *tls.Config
	var err error
	if certFile != "" && keyFile != "" {
		tlsCfg, err = mcpquic.FileTLSConfig(certFile, keyFile)
	} else {
		tlsCfg, err = mcpquic.SelfSignedTLSConfig()
	}
	if err != nil {
		return fmt.Errorf("quic tls: %w", err)
	}

	ql, err := mcpquic.NewListener(addr, tlsCfg, mcpSrv, logger)
	if err != nil {
		return fmt.Errorf("quic listener: %w", err)
	}
	defer ql.Close()

	logger.Info("serving MCP over QUIC", "addr", addr)
	if err := ql.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("quic serve: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

// --- Admin HTTP ---

func adminRouter(cfg config.AdminConfig, logger *slog.Logger, auditDB *sql.DB, auditor *audit.SQLiteLogger, svc *wikisync.Service) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.AdminStack(logger) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := auditDB.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin(cfg.PasswordHash))

		r.Get("/api/audit", func(w http.ResponseWriter, r *http.Request) {
			entries, err := auditor.Recent(r.Context(), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if entries == nil {
				entries = []audit.Entry{}
			}
			writeJSON(w, http.StatusOK, entries)
		})

		r.Get("/api/projects", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"allowed_projects": svc.AllowedProjects(),
				"writes_enabled":   svc.WritesEnabled(),
			})
		})
	})

	return r
}

// requireAdmin gates a route group behind Basic auth checked against the
// configured bcrypt hash. No configured hash means no access.
func requireAdmin(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, pass, ok := r.BasicAuth()
			if hash == "" || !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="passerelle admin"`)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Helpers ---

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
