package main

import (
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/fx006/diet-train-app/audit"
	"github.com/fx006/diet-train-app/export"
	"github.com/fx006/diet-train-app/kit"
	"github.com/fx006/diet-train-app/plan"
	"github.com/fx006/diet-train-app/planimport"
	"github.com/fx006/diet-train-app/store"
	"github.com/fx006/diet-train-app/validate"
)

// kindFlag parses an optional --kind value; empty means the configured default.
func kindFlag(s string) (validate.Kind, error) {
	if s == "" {
		return "", nil
	}
	return validate.ParseKind(s)
}

func (a *app) sniffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sniff FILE",
		Short: "Check a file's extension, size and signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			im, err := a.importer(nil)
			if err != nil {
				return err
			}
			res := im.Sniff(args[0])
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid {
				return fmt.Errorf("sniff %s: %s", args[0], res.Error)
			}
			return nil
		},
	}
}

func (a *app) parseCmd() *cobra.Command {
	var (
		kind     string
		showRows bool
	)
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse and validate a plan file without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := kindFlag(kind)
			if err != nil {
				return err
			}
			im, err := a.importer(nil)
			if err != nil {
				return err
			}
			insp, err := im.Inspect(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			if !showRows {
				insp.Document.Rows = nil
			}
			return printJSON(cmd.OutOrStdout(), insp)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Validation kind: general, meal or exercise")
	cmd.Flags().BoolVar(&showRows, "rows", false, "Include the normalized rows in the output")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var (
		kind   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a plan file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := kindFlag(kind)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			return a.withStore(func(st *store.Store) error {
				im, err := a.importer(st)
				if err != nil {
					return err
				}
				ctx := kit.WithTransport(cmd.Context(), "cli")
				start := time.Now()
				rep, err := im.ImportFile(ctx, args[0], f, planimport.Options{Kind: k, DryRun: dryRun})
				if a.cfg.Audit.Enabled {
					al := audit.New(st.DB())
					al.Record(ctx, "import", map[string]any{"file": args[0], "kind": k, "dry_run": dryRun},
						importSummary(rep), err, time.Since(start))
					al.Close()
				}
				if rep != nil {
					if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Validation kind: general, meal or exercise")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and validate without saving")
	return cmd
}

func importSummary(rep *planimport.Report) any {
	if rep == nil {
		return nil
	}
	return map[string]any{
		"import_id":    rep.ImportID,
		"deduplicated": rep.Deduplicated,
		"parsed_rows":  rep.ParsedRows,
		"saved_data":   rep.Saved,
	}
}

func (a *app) exportCmd() *cobra.Command {
	var (
		format   string
		out      string
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored plans as Excel or CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			for _, d := range []string{from, to} {
				if d == "" {
					continue
				}
				if _, err := plan.ParseISODate(d); err != nil {
					return fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
				}
			}
			if from != "" && to != "" && from > to {
				return fmt.Errorf("--from %s is after --to %s", from, to)
			}
			if out == "" {
				out = f.FileName()
			}
			return a.withStore(func(st *store.Store) error {
				plans, err := st.ListPlans(cmd.Context(), store.Range{From: from, To: to})
				if err != nil {
					return err
				}
				if out == "-" {
					return export.Write(cmd.OutOrStdout(), f, plans)
				}
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				if err := export.Write(file, f, plans); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d plans to %s\n", len(plans), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "excel", "Export format: excel or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file, - for stdout (default plans_export.<ext>)")
	cmd.Flags().StringVar(&from, "from", "", "First plan date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last plan date (YYYY-MM-DD)")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the plan import tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			serve := func(cfg planimport.Config) error {
				im, err := planimport.New(cfg, nil)
				if err != nil {
					return err
				}
				srv := mcp.NewServer(&mcp.Implementation{Name: "planctl", Version: "v0.1.0"}, nil)
				im.RegisterMCP(srv)
				a.logger.Info("mcp server starting", "transport", "stdio", "audit", a.cfg.Audit.Enabled)
				return srv.Run(cmd.Context(), &mcp.StdioTransport{})
			}
			if !a.cfg.Audit.Enabled {
				return serve(a.importerConfig())
			}
			return a.withStore(func(st *store.Store) error {
				al := audit.New(st.DB())
				defer al.Close()
				cfg := a.importerConfig()
				cfg.ToolMiddleware = func(tool string) kit.Middleware { return audit.Middleware(al, tool) }
				return serve(cfg)
			})
		},
	}
}
