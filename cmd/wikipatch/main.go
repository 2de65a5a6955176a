// CLAUDE:SUMMARY One-shot wiki patch CLI — same sync core as the server, one replacement, diff on stdout.
// Command wikipatch performs a single text replacement on a wiki page.
//
// Usage:
//
//	wikipatch -config passerelle.yaml -project Platform \
//	          -page /Runbooks/Deploy -old "v1.4.2" -new "v1.4.3"
//
// The search text must appear exactly once on the page unless -all is
// given. On success the rendered diff is printed to stdout; any failure
// exits 1. The config's project allow-list and write gate apply to this
// tool exactly as they do to the server, and DEVOPS_TOKEN must be set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/passerelle/devops"
	"github.com/hazyhaar/passerelle/internal/config"
	"github.com/hazyhaar/passerelle/wikisync"
)

func main() {
	configPath := flag.String("config", "", "path to passerelle.yaml (or PASSERELLE_CONFIG)")
	project := flag.String("project", "", "project name")
	wiki := flag.String("wiki", "", "wiki identifier (default from config)")
	page := flag.String("page", "", "wiki page path")
	oldText := flag.String("old", "", "exact text to replace")
	newText := flag.String("new", "", "replacement text (may be empty to delete the match)")
	all := flag.Bool("all", false, "replace every occurrence")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	// Stdout is reserved for the diff.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *project, *wiki, *page, *oldText, *newText, *all); err != nil {
		logger.Error("wikipatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, project, wiki, page, oldText, newText string, all bool) error {
	// An empty -new deletes the match, which must be asked for explicitly:
	// a forgotten flag should not silently erase text.
	newSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "new" {
			newSet = true
		}
	})
	if project == "" || page == "" || oldText == "" || !newSet {
		fmt.Fprintln(os.Stderr, "usage: wikipatch -config <file> -project <name> -page <path> -old <text> -new <text> [-wiki <id>] [-all]")
		os.Exit(2)
	}

	if configPath == "" {
		configPath = env("PASSERELLE_CONFIG", "passerelle.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if wiki == "" {
		wiki = cfg.DevOps.DefaultWiki
	}
	if wiki == "" {
		return fmt.Errorf("no wiki: pass -wiki or set devops.default_wiki in the config")
	}

	pat := os.Getenv("DEVOPS_TOKEN")
	if cfg.DevOps.BaseURL == "" || pat == "" {
		return fmt.Errorf("devops base_url and DEVOPS_TOKEN are required")
	}
	devOpts := []devops.Option{devops.WithLogger(logger)}
	if cfg.DevOps.PublicOnly {
		devOpts = append(devOpts, devops.WithPublicOnly())
	}
	client, err := devops.NewClient(cfg.DevOps.BaseURL, pat, devOpts...)
	if err != nil {
		return fmt.Errorf("devops client: %w", err)
	}

	svc, err := wikisync.New(client, &cfg.Wiki, logger)
	if err != nil {
		return fmt.Errorf("wiki sync: %w", err)
	}

	res, err := svc.UpdateContent(ctx, &wikisync.UpdateRequest{
		Project:     project,
		WikiID:      wiki,
		Path:        page,
		OldText:     oldText,
		NewText:     newText,
		ReplaceAll:  all,
		Description: "wikipatch",
	})
	if err != nil {
		return err
	}

	fmt.Println(res.Diff)
	logger.Info("page updated",
		"project", project,
		"path", page,
		"occurrences", res.Occurrences,
		"version", res.Version)
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
