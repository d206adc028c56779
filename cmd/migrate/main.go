package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/woodchain/internal/config"
	"github.com/ariefcatur/woodchain/internal/ledger"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/ariefcatur/woodchain/internal/postgres"
	"github.com/ariefcatur/woodchain/internal/reconcile"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"os"
	"strconv"
	"time"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Schema migrations and ledger audit for woodchain",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfg.PostgresDSN, "dsn", cfg.PostgresDSN, "postgres connection string")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := postgres.MigrateUp(cfg.PostgresDSN); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (all when steps is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return postgres.MigrateDown(cfg.PostgresDSN, steps)
		},
	})

	var dir string
	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Create an empty up/down migration pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, down, err := postgres.CreateMigration(dir, args[0], time.Now().UTC())
			if err != nil {
				return err
			}
			cmd.Println(up)
			cmd.Println(down)
			return nil
		},
	}
	create.Flags().StringVar(&dir, "dir", "internal/postgres/migrations", "migrations directory")
	root.AddCommand(create)

	root.AddCommand(&cobra.Command{
		Use:   "ledger-audit [order_id]",
		Short: "Compare one order against the ledger and print the drift; exits non-zero on drift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("order_id: %w", err)
			}
			return audit(cmd, cfg, orderID)
		},
	})
	return root
}

func audit(cmd *cobra.Command, cfg config.Config, orderID int64) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	art, err := ledger.LoadArtifact(cfg.LedgerArtifact)
	if err != nil {
		return err
	}
	lc, err := ledger.Dial(ctx, cfg.LedgerRPCURL, art, ledger.Options{}, nil)
	if err != nil {
		return err
	}
	defer lc.Close()

	svc := &reconcile.Service{Local: &orders.Repo{DB: db}, Ledger: lc}
	drift, err := svc.Compare(ctx, orderID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(drift); err != nil {
		return err
	}
	if len(drift) > 0 {
		return fmt.Errorf("order %d: %d mismatch(es) with the ledger", orderID, len(drift))
	}
	return nil
}
