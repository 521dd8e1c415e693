// Package cli wires the declaration file, the connection pool, and the
// schema-sync pipeline behind the tempora command tree. Thin glue only; no
// temporal or sync semantics live here.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tempora/internal/config"
	"tempora/internal/model"
	"tempora/internal/output"
	"tempora/internal/pool"
	"tempora/internal/schemasync"
)

// NewRootCommand builds the tempora command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tempora",
		Short: "Temporal schema synchronization for PostgreSQL – TOML-declared models, three versioning strategies",
	}

	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(pingCmd())
	return rootCmd
}

// commonFlags are shared by the commands that reach the database.
type commonFlags struct {
	dsn     string
	verbose bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "PostgreSQL DSN (overrides the declaration file)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Verbose structured logging")
}

func (f *commonFlags) logger() (*zap.Logger, error) {
	if f.verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// resolveDSN prefers the flag, then the file, then the environment.
func (f *commonFlags) resolveDSN(cfg *config.Config) (string, error) {
	if f.dsn != "" {
		return f.dsn, nil
	}
	if cfg != nil && cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if env := os.Getenv("TEMPORA_DSN"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("no DSN: use --dsn, set [database].dsn in the declaration file, or export TEMPORA_DSN")
}

func syncCmd() *cobra.Command {
	var flags commonFlags
	var allowDestructive bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync <models.toml>",
		Short: "Reconcile the database schema with the declared models",
		Long: `Sync extracts the desired table shape of every declared model, compares it
against the live database, and applies the generated DDL in one transaction.
Destructive changes (drops, narrowing type changes) are skipped unless
--allow-destructive is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(args[0])
			if err != nil {
				return err
			}
			log, err := flags.logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			p, err := openPool(cmd, &flags, cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			manager := schemasync.NewManager(p, log)
			result, err := manager.Sync(cmd.Context(), cfg.Models, schemasync.Options{
				AllowDestructive: allowDestructive,
				DryRun:           dryRun,
			})
			if err != nil {
				return err
			}

			printResult(cmd, result, dryRun)
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d model(s) failed introspection", len(result.Failed))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&allowDestructive, "allow-destructive", false, "Apply destructive changes (drops, narrowing types)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and report changes without applying anything")
	return cmd
}

func planCmd() *cobra.Command {
	var flags commonFlags
	var allowDestructive bool
	var format string

	cmd := &cobra.Command{
		Use:   "plan <models.toml>",
		Short: "Print the DDL a sync would execute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(args[0])
			if err != nil {
				return err
			}

			p, err := openPool(cmd, &flags, cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			manager := schemasync.NewManager(p, zap.NewNop())
			result, err := manager.Sync(cmd.Context(), cfg.Models, schemasync.Options{
				AllowDestructive: allowDestructive,
				DryRun:           true,
			})
			if err != nil {
				return err
			}

			formatter, err := output.NewFormatter(format, manager.Generator())
			if err != nil {
				return err
			}
			rendered, err := formatter.FormatResult(result)
			if err != nil {
				return err
			}
			cmd.Print(rendered)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&allowDestructive, "allow-destructive", false, "Include destructive changes in the plan")
	cmd.Flags().StringVarP(&format, "output", "o", "sql", "Output format: 'sql', 'json', or 'summary'")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <models.toml>",
		Short: "Validate a model declaration file without touching any database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(args[0])
			if err != nil {
				return err
			}
			for _, def := range cfg.Models {
				cmd.Printf("%s -> %s.%s (strategy=%s, fields=%d%s)\n",
					def.Name, def.TableSchema(), def.Table, def.Strategy,
					len(def.Fields), modelTraits(def))
			}
			cmd.Printf("%d model(s) valid\n", len(cfg.Models))
			return nil
		},
	}
	return cmd
}

func pingCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "ping [models.toml]",
		Short: "Verify database connectivity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			if len(args) == 1 {
				loaded, err := config.LoadFile(args[0])
				if err != nil {
					return err
				}
				cfg = loaded
			}

			p, err := openPool(cmd, &flags, cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			cmd.Println("connection OK")
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func openPool(cmd *cobra.Command, flags *commonFlags, cfg *config.Config) (*pool.Pool, error) {
	dsn, err := flags.resolveDSN(cfg)
	if err != nil {
		return nil, err
	}
	return pool.Open(cmd.Context(), dsn)
}

func printResult(cmd *cobra.Command, result *schemasync.Result, dryRun bool) {
	for _, tr := range result.Tables {
		for _, change := range tr.Changes {
			cmd.Printf("%s: %s\n", tr.Table, change.String())
		}
		for _, skipped := range tr.Skipped {
			cmd.Printf("%s: SKIPPED %s\n", tr.Table, skipped.String())
		}
	}
	for name, err := range result.Failed {
		cmd.Printf("%s: FAILED %v\n", name, err)
	}

	if dryRun {
		cmd.Printf("dry run: %d change(s) planned, %d skipped, nothing applied\n",
			plannedChanges(result), result.SkippedCount())
		return
	}
	cmd.Printf("applied %d change(s), skipped %d\n", result.Applied, result.SkippedCount())
}

func plannedChanges(result *schemasync.Result) int {
	n := 0
	for _, tr := range result.Tables {
		n += len(tr.Changes)
	}
	return n
}

func modelTraits(def *model.Definition) string {
	traits := ""
	if def.SoftDelete {
		traits += ", soft-delete"
	}
	if def.MultiTenant {
		traits += ", multi-tenant"
	}
	return traits
}
