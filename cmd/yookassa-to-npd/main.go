package main

import (
	"context"
	"flag"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/ragimov700/yookassa-to-npd/internal/config"
	"github.com/ragimov700/yookassa-to-npd/internal/ingest"
	"github.com/ragimov700/yookassa-to-npd/internal/ledger"
	"github.com/ragimov700/yookassa-to-npd/internal/npd"
	"github.com/ragimov700/yookassa-to-npd/internal/pipeline"
	"github.com/ragimov700/yookassa-to-npd/internal/secrets"
	"github.com/ragimov700/yookassa-to-npd/internal/tui"
)

func main() {
	batch := flag.Bool("batch", false, "run headless over a CSV export and exit")
	file := flag.String("file", "", "CSV export path (overrides the remembered one)")
	checkToken := flag.Bool("check-token", false, "validate the stored token and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", "err", err)
	}

	if *batch || *checkToken {
		runHeadless(cfg, *file, *checkToken)
		return
	}

	p := tea.NewProgram(tui.New(context.Background(), cfg), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatal("tui", "err", err)
	}
}

func runHeadless(cfg config.Config, file string, checkOnly bool) {
	ctx := context.Background()
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	token := os.Getenv("NPD_TOKEN")
	if token == "" {
		token, _ = secrets.FetchToken()
	}
	if token == "" {
		logger.Fatal("no token: set NPD_TOKEN or save one via the TUI")
	}
	client := npd.NewClientWithBase(token, cfg.API.BaseURL)

	// Credential validation is separate from, and earlier than, the batch.
	tp, err := client.CheckToken(ctx)
	if err != nil {
		logger.Fatal("token check failed", "err", err)
	}
	logger.Info("token OK", "taxpayer", tp.DisplayName, "inn", tp.INN)
	if checkOnly {
		return
	}

	if file == "" {
		file = cfg.Run.LastFile
	}
	if file == "" {
		logger.Fatal("no CSV file: pass -file")
	}

	reader := ingest.Reader{Log: logger}
	records, err := reader.ReadFile(file)
	if err != nil {
		logger.Fatal("read export", "file", file, "err", err)
	}
	logger.Info("records found", "count", len(records))

	store, err := openStore(cfg.Ledger)
	if err != nil {
		logger.Fatal("open ledger", "err", err)
	}
	defer store.Close()

	audit, err := ledger.OpenAuditLog(cfg.Ledger.AuditPath)
	if err != nil {
		logger.Fatal("open audit log", "err", err)
	}
	defer audit.Close()

	cfg.Run.LastFile = file
	if err := config.Save(cfg); err != nil {
		logger.Warn("save config", "err", err)
	}

	p := &pipeline.Pipeline{
		Client: client,
		Ledger: store,
		Audit:  audit,
		Log:    logger,
		Progress: func(done, total int) {
			logger.Info("progress", "done", done, "total", total)
		},
	}
	summary := p.Run(ctx, records, pipeline.Options{
		ServiceName:        cfg.Run.ServiceName,
		ServiceNameFromCSV: cfg.Run.ServiceMode == config.ServiceModeCSV,
		PaymentType:        cfg.Run.PaymentType,
	})
	logger.Info("summary", "run_id", summary.RunID, "submitted", summary.Submitted, "total", summary.Total)
}

func openStore(cfg config.LedgerConfig) (ledger.Store, error) {
	if cfg.Backend == "sqlite" {
		return ledger.OpenSQLiteStore(cfg.Path, cfg.MigrationsPath)
	}
	return ledger.OpenFileStore(cfg.Path)
}
