package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dgallion1/pagetree/internal/config"
	"github.com/dgallion1/pagetree/internal/fetch"
	"github.com/dgallion1/pagetree/internal/importer"
	"github.com/dgallion1/pagetree/internal/instructions"
	"github.com/dgallion1/pagetree/internal/scripting"
	"github.com/dgallion1/pagetree/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	dbPath     string
	filesDir   string
	name       string
	base       string
	fragment   bool
	markdown   bool
	deployment bool
	textLog    bool
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("pagetree-import", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flagSet.StringVar(&opts.dbPath, "db", "", "SQLite database (overrides DATABASE_PATH)")
	flagSet.StringVar(&opts.filesDir, "files", "", "directory for downloaded files (overrides FILES_DIR)")
	flagSet.StringVar(&opts.name, "name", "", "page name (default: derived from the source)")
	flagSet.StringVar(&opts.base, "base", "", "base URL for relative resources (overrides BASE_URL)")
	flagSet.BoolVar(&opts.fragment, "fragment", false, "treat the source as a fragment below an empty page")
	flagSet.BoolVar(&opts.markdown, "markdown", false, "treat the source as Markdown")
	flagSet.BoolVar(&opts.deployment, "deployment", false, "deployment mode: no downloads, fixed visibility")
	flagSet.BoolVar(&opts.textLog, "text-log", false, "log as text instead of JSON")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("expected at least one source")
	}
	if opts.fragment && opts.markdown {
		return fmt.Errorf("--fragment and --markdown are mutually exclusive")
	}
	if opts.name != "" && len(args) > 1 {
		return fmt.Errorf("--name needs exactly one source")
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, opts.textLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenSQLite(ctx, cfg.DatabasePath, log)
	if err != nil {
		return err
	}
	defer db.Close()
	files, err := store.NewFileStore(cfg.FilesDir)
	if err != nil {
		return err
	}
	client := fetch.NewClient(fetch.Options{
		Timeout:   cfg.FetchTimeout,
		Attempts:  cfg.FetchRetries,
		MaxBytes:  cfg.MaxDownloadBytes,
		UserAgent: cfg.UserAgent,
	}, log)
	defer client.Close()

	common := []importer.Option{
		importer.WithLogger(log),
		importer.WithFetcher(client),
		importer.WithFileStore(files),
		importer.WithInstructionHandler(instructions.NewDeploymentHandler(log)),
		importer.WithEvaluator(scripting.NewExprEvaluator(scripting.WithLogger(log))),
		importer.WithVisibility(cfg.PublicVisible, cfg.AuthVisible),
		importer.WithDeployment(cfg.DeploymentMode),
		importer.WithRelativeVisibility(cfg.RelativeVisibility),
		importer.WithPDFFallback(cfg.PDFFallbackPdftotext),
	}

	// Each local file resolves its resources next to itself unless a base
	// URL is configured, so every source gets its own batch.
	failed := 0
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, arg := range args {
		src, base, err := readSource(arg, opts, cfg.BaseURL)
		if err != nil {
			return err
		}
		log.Info("importing", "source", arg, "kind", src.Kind, "name", src.Name)
		results := importer.RunBatches(ctx, db, []importer.Source{src}, append(common, importer.WithBaseURL(base))...)
		for _, r := range results {
			if r.Err != nil {
				failed++
				log.Error("import failed", "source", arg, "error", r.Err)
				continue
			}
			if err := enc.Encode(report{
				Source: arg,
				PageID: r.Result.Root.DocumentOf(),
				Page:   r.Source.Name,
				Report: r.Result.Report,
			}); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(args))
	}
	return nil
}

type report struct {
	Source string               `json:"source"`
	PageID string               `json:"page_id"`
	Page   string               `json:"page"`
	Report importer.RunSnapshot `json:"report"`
}

// readSource turns a command line argument into an import source and the
// base URL its relative resources resolve against.
func readSource(arg string, opts options, baseURL string) (importer.Source, string, error) {
	name := opts.name
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return importer.Source{Name: name, Kind: importer.SourceURL, Content: arg}, baseURL, nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return importer.Source{}, "", fmt.Errorf("read %s: %w", arg, err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
	}
	kind := importer.SourceDocument
	switch {
	case opts.fragment:
		kind = importer.SourceFragment
	case opts.markdown:
		kind = importer.SourceMarkdown
	}
	if baseURL == "" {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return importer.Source{}, "", fmt.Errorf("resolve %s: %w", arg, err)
		}
		baseURL = "file://" + filepath.ToSlash(abs)
	}
	return importer.Source{Name: name, Kind: kind, Content: string(data)}, baseURL, nil
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Load()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if opts.dbPath != "" {
		cfg.DatabasePath = opts.dbPath
	}
	if opts.filesDir != "" {
		cfg.FilesDir = opts.filesDir
	}
	if opts.base != "" {
		cfg.BaseURL = opts.base
	}
	if opts.deployment {
		cfg.DeploymentMode = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(level string, text bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if text {
		return slog.New(slog.NewTextHandler(os.Stderr, hopts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, hopts))
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `pagetree-import: import an HTML or Markdown page into a document tree store.

Usage:
  pagetree-import [flags] <file|URL>...

Examples:
  pagetree-import --db site.db --name home index.html
  pagetree-import --fragment --name snippet card.html
  pagetree-import --markdown README.md
  pagetree-import https://example.com/index.html

Flags:
`)
	flagSet.PrintDefaults()
}
