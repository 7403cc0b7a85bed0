package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fx006/diet-train-app/config"
	"github.com/fx006/diet-train-app/planimport"
	"github.com/fx006/diet-train-app/store"
)

type app struct {
	dbPath   string
	logLevel string
	cfg      *config.Config
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "planctl",
		Short:         "planctl imports diet and exercise plans from spreadsheets and PDFs",
		Long:          "planctl sniffs, parses, validates and imports .xlsx, .xls and .pdf plan files, exports stored plans and serves the import tools over MCP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if a.dbPath != "" {
				cfg.DBPath = a.dbPath
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			a.cfg = cfg
			// Logs go to stderr: stdout carries JSON results and the MCP stream.
			a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level(cfg.LogLevel)}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "Path to SQLite database (default from config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		a.sniffCmd(),
		a.parseCmd(),
		a.importCmd(),
		a.exportCmd(),
		a.mcpCmd(),
	)
	return root
}

func level(s string) slog.Level {
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

func (a *app) importerConfig() planimport.Config {
	return planimport.Config{
		UploadDir:   a.cfg.UploadDir,
		MaxFileSize: a.cfg.MaxFileBytes(),
		DefaultKind: a.cfg.Kind(),
		Logger:      a.logger,
	}
}

// importer builds an Importer; saver may be nil for read-only commands.
func (a *app) importer(saver planimport.PlanSaver) (*planimport.Importer, error) {
	return planimport.New(a.importerConfig(), saver)
}

func (a *app) withStore(run func(*store.Store) error) error {
	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return run(st)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
