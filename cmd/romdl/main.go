package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/mmcdole/romdl/internal/catalog"
	"github.com/mmcdole/romdl/internal/config"
	"github.com/mmcdole/romdl/internal/domain"
	"github.com/mmcdole/romdl/internal/download"
	"github.com/mmcdole/romdl/internal/install"
	"github.com/mmcdole/romdl/internal/listing"
	"github.com/mmcdole/romdl/internal/log"
	"github.com/mmcdole/romdl/internal/service"
	"github.com/mmcdole/romdl/internal/store"
	"github.com/mmcdole/romdl/internal/tui"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var Version = "dev"

type flags struct {
	configFile  string
	catalogFile string
	system      string
	initConfig  bool
}

func main() {
	var (
		showVersion bool
		f           flags
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&f.configFile, "config", "", "config file (default ~/.config/romdl/config.yaml)")
	flag.StringVar(&f.catalogFile, "catalog", "", "catalog file, overrides catalog.file")
	flag.StringVar(&f.system, "system", "", "open the system best matching this name")
	flag.BoolVar(&f.initConfig, "init", false, "write the default config file and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("romdl %s\n", Version)
		return
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	// A missing .env is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.LoadConfig(f.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if f.catalogFile != "" {
		cfg.Catalog.File = config.ExpandHome(f.catalogFile)
	}

	if f.initConfig {
		if err := config.SaveConfig(cfg, f.configFile); err != nil {
			return err
		}
		fmt.Println("Config written.")
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Setup logger
	logger, logFile, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	} else {
		defer logFile.Close()
	}
	slog.SetDefault(logger)

	logger.Info("starting romdl", "version", Version)

	var failures domain.FailureRecorder = domain.DiscardFailures{}
	if flog, err := log.NewFailureLog(&cfg.Logging); err != nil {
		logger.Warn("failure log unavailable", "path", cfg.Logging.FailureFile, "error", err)
	} else {
		defer flog.Close()
		failures = flog
	}

	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		logger.Error("failed to load catalog", "path", cfg.Catalog.File, "error", err)
		failures.Record(domain.KindFatalInit, cfg.Catalog.File, err)
		return err
	}
	logger.Info("loaded catalog", "systems", cat.Len())

	start, err := startSystem(cat, f.system)
	if err != nil {
		return err
	}
	if sys, ok := cat.Get(start); ok {
		logger.Info("opening system", "query", f.system, "system", sys.Name)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("romdl needs an interactive terminal")
	}

	historyDir := ""
	if cfg.History.Enabled {
		historyDir = cfg.History.Dir
	}
	history, err := store.NewHistoryStore(historyDir)
	if err != nil {
		logger.Warn("install history unavailable, keeping it in memory", "dir", historyDir, "error", err)
		history, _ = store.NewHistoryStore("")
	}
	defer history.Close()

	// Create pipeline
	fetcher := listing.NewFetcher(cfg.Network.ListingTimeout, cfg.Network.UserAgent, failures, logger)
	installer := install.New(afero.NewOsFs(), logger)
	orchestrator := download.NewOrchestrator(download.Options{
		StagingDir:      cfg.Paths.Staging,
		DestinationRoot: cfg.Paths.Destination,
		ChunkSize:       cfg.Network.ChunkSize,
		Timeout:         cfg.Network.DownloadTimeout,
		UserAgent:       cfg.Network.UserAgent,
	}, installer, failures, logger)

	// Create services
	catalogSvc := service.NewCatalogService(cat.Systems(), fetcher, history, logger)
	catalogSvc.VerifyInstalls(installer.Fs(), cfg.Paths.Destination)
	transferSvc := service.NewTransferService(orchestrator, history, logger)

	model := tui.NewModel(catalogSvc, transferSvc, tui.Options{
		RepeatDelay:    cfg.Input.RepeatDelay,
		RepeatInterval: cfg.Input.RepeatInterval,
		StartSystem:    start,
	}, logger)

	p := tea.NewProgram(model, tea.WithAltScreen())

	logger.Info("starting TUI")

	if _, err := p.Run(); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

// startSystem resolves the -system flag to a catalog index, -1 when unset.
func startSystem(cat *catalog.Catalog, name string) (int, error) {
	if name == "" {
		return -1, nil
	}
	i, err := cat.Lookup(name)
	if err != nil {
		return -1, fmt.Errorf("-system: %w", err)
	}
	return i, nil
}
