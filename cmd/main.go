package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/takak2166/confluence2openwebui/internal/collector"
	"github.com/takak2166/confluence2openwebui/internal/config"
	"github.com/takak2166/confluence2openwebui/internal/confluence"
	"github.com/takak2166/confluence2openwebui/internal/enricher"
	"github.com/takak2166/confluence2openwebui/internal/exporter"
	"github.com/takak2166/confluence2openwebui/internal/filter"
	"github.com/takak2166/confluence2openwebui/internal/history"
	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/notion"
	"github.com/takak2166/confluence2openwebui/internal/openwebui"
	"github.com/takak2166/confluence2openwebui/internal/retry"
	"github.com/takak2166/confluence2openwebui/internal/target"
	"github.com/takak2166/confluence2openwebui/internal/transport"
)

// errFailures marks a run that finished with failed items
var errFailures = errors.New("export finished with failures")

var (
	configFile   string
	searchLimit  int
	historyLimit int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailures) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "confluence2openwebui",
		Short:         "Export Confluence content into knowledge bases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a config file (yaml, json or toml)")

	spaceCmd := &cobra.Command{
		Use:     "space KEY",
		Short:   "Export every page of a space",
		Example: "  confluence2openwebui space DOCS",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, func(src collector.Source, _ *config.Config) collector.Collector {
				return collector.NewBySpace(src, args[0])
			})
		},
	}

	pageCmd := &cobra.Command{
		Use:     "page ID",
		Short:   "Export a single page and its attachments",
		Example: "  confluence2openwebui page 123456",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, func(src collector.Source, _ *config.Config) collector.Collector {
				return collector.NewByPage(src, args[0])
			})
		},
	}

	searchCmd := &cobra.Command{
		Use:     "search CQL",
		Short:   "Export the pages matching a CQL query",
		Example: `  confluence2openwebui search 'label = "runbook"' --limit 50`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, func(src collector.Source, cfg *config.Config) collector.Collector {
				limit := searchLimit
				if limit <= 0 {
					limit = cfg.Export.SearchLimit
				}
				return collector.NewByQuery(src, args[0], limit)
			})
		},
	}
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "Maximum number of results (defaults to EXPORT_SEARCH_LIMIT)")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent exports",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")

	root.AddCommand(spaceCmd, pageCmd, searchCmd, historyCmd)
	return root
}

// setup loads configuration and initializes the logger
func setup() (*config.Config, error) {
	return setupWith(config.Load)
}

func setupWith(load func(string) (*config.Config, error)) (*config.Config, error) {
	cfg, err := load(configFile)
	if err != nil {
		return nil, err
	}
	if err := logger.InitWithOptions(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func newTarget(cfg *config.Config, hc *transport.Client) (target.Client, error) {
	var client target.Client
	switch cfg.Backend {
	case "notion":
		c, err := notion.New(cfg.Notion.APIKey, cfg.Notion.ParentPageID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Notion client: %w", err)
		}
		client = c
	default:
		c, err := openwebui.New(cfg.OpenWebUI.URL, cfg.OpenWebUI.APIKey, hc)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Open WebUI client: %w", err)
		}
		client = c
	}

	if cfg.Circuit.Enabled {
		client = target.NewCircuitBreakerClient(client, target.DefaultBreakerSettings())
	}
	return client, nil
}

func runExport(cmd *cobra.Command, build func(collector.Source, *config.Config) collector.Collector) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hc := transport.New(cfg.HTTP.Timeout(), cfg.HTTP.RateLimit)
	source, err := confluence.New(cfg.Confluence.URL, confluence.Credentials{
		Username: cfg.Confluence.Username,
		APIToken: cfg.Confluence.APIToken,
		PAT:      cfg.Confluence.PAT,
	}, hc)
	if err != nil {
		return fmt.Errorf("failed to initialize Confluence client: %w", err)
	}

	client, err := newTarget(cfg, hc)
	if err != nil {
		return err
	}

	f, err := filter.New(cfg.Export.AttachmentExtensions, cfg.Export.MaxAttachmentSizeMB)
	if err != nil {
		return err
	}
	codes, err := cfg.Retry.RetryableStatusCodes()
	if err != nil {
		return err
	}
	policy := retry.NewPolicy(cfg.Retry.BackoffFactor, cfg.Retry.MaxRetries, cfg.Retry.MaxBackoff(), codes)

	c := build(source, cfg)
	if err := c.Validate(ctx); err != nil {
		return fmt.Errorf("invalid export request: %w", err)
	}

	engine := exporter.New(client, source, confluence.NewLocalStore(cfg.Export.OutputPath, source), f, enricher.New(), policy,
		exporter.Options{
			BatchAdd:    cfg.Export.BatchAdd,
			Concurrency: cfg.Export.Concurrency,
			Progress: func(space string, done, total int) {
				logger.Debug("Progress", map[string]interface{}{
					"space": space,
					"done":  done,
					"total": total,
				})
			},
		})

	logger.Info("Starting export", map[string]interface{}{
		"target":      cfg.Backend,
		"description": c.Description(),
		"filter":      f.Summary(),
	})

	result, err := engine.Run(ctx, c)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(result.Summaries) == 0 {
		fmt.Fprintf(out, "Nothing to export for %s\n", result.Description)
	}
	for _, s := range result.Summaries {
		fmt.Fprintln(out, s.Report(5))
		fmt.Fprintln(out)
	}

	if cfg.History.DB != "" {
		if err := recordHistory(cfg.History.DB, result); err != nil {
			logger.Warn("Failed to record export history", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if result.Canceled {
		fmt.Fprintln(out, "Export was canceled before completion")
	}
	if result.HasFailures() {
		return errFailures
	}
	return nil
}

func recordHistory(path string, result *exporter.Result) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	// The run context may already be canceled; the ledger should still be written
	return store.RecordResult(context.Background(), result)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := setupWith(config.LoadLocal)
	if err != nil {
		return err
	}
	if cfg.History.DB == "" {
		return fmt.Errorf("HISTORY_DB is not set")
	}

	store, err := history.Open(cfg.History.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No exports recorded.")
		return nil
	}
	for _, e := range entries {
		status := "ok"
		switch {
		case e.Aborted:
			status = "aborted"
		case e.Failed > 0 || e.Canceled > 0 || e.RegistrationFails > 0:
			status = "failures"
		}
		fmt.Fprintf(out, "%s  %-10s  %-30s  ok=%d failed=%d canceled=%d filtered=%d  %s  run=%s\n",
			e.StartTime.Local().Format("2006-01-02 15:04"), e.SpaceKey, e.KnowledgeBaseName,
			e.Successful, e.Failed, e.Canceled, e.Filtered, status, e.RunID)
	}
	return nil
}
