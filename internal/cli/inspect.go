package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage/migrations"
	pgstore "kalshi-trader/internal/storage/postgres"
)

func newPositionsCmd(g *globals) *cobra.Command {
	var closed int
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Show open positions and recent closes from the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg.Storage, zerolog.Nop())
			if err != nil {
				return err
			}
			defer st.close()

			book, err := st.positions.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load positions: %w", err)
			}
			writePositions(cmd.OutOrStdout(), book, closed)
			return nil
		},
	}
	cmd.Flags().IntVar(&closed, "closed", 10, "Number of most recent closed positions to show")
	return cmd
}

func writePositions(w io.Writer, book *domain.PositionBook, closed int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "OPEN (%d)\n", len(book.Open))
	fmt.Fprintln(tw, "TICKER\tKIND\tSIDE\tCOUNT\tENTRY\tCOST\tEXIT BY\t")
	var exposure domain.Cents
	for _, p := range book.Open {
		exposure += p.BetAmount
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t\n",
			p.Ticker, p.Kind, p.Side, p.FillCount, p.EntryPrice, p.BetAmount, p.ExitTime.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "exposure\t%s\t\t\t\t\t\t\n\n", exposure)

	start := 0
	if closed >= 0 && len(book.Closed) > closed {
		start = len(book.Closed) - closed
	}
	recent := book.Closed[start:]
	fmt.Fprintf(tw, "CLOSED (%d of %d)\n", len(recent), len(book.Closed))
	fmt.Fprintln(tw, "TICKER\tKIND\tSTATUS\tENTRY\tEXIT\tPNL\tCLOSED\t")
	var pnl domain.Cents
	for _, p := range recent {
		pnl += p.RealizedPnL
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			p.Ticker, p.Kind, p.Status, p.EntryPrice, p.ExitPrice, p.RealizedPnL, p.ClosedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "realized\t\t\t\t\t%s\t\t\n", pnl)
	tw.Flush()
}

func newEventsCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the most recent event log entries as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg.Storage, zerolog.Nop())
			if err != nil {
				return err
			}
			defer st.close()

			events, err := st.events.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read events: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range events {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")
	return cmd
}

func newMigrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres and ClickHouse schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ran := false

			if cfg.Storage.PostgresDSN != "" {
				pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
				if err != nil {
					return fmt.Errorf("connect to postgres: %w", err)
				}
				defer pool.Close()
				applied, err := migrations.RunPostgresMigrations(ctx, pool)
				if err != nil {
					return fmt.Errorf("migrate postgres: %w", err)
				}
				if len(applied) == 0 {
					printf(cmd, "postgres: up to date\n")
				} else {
					printf(cmd, "postgres: applied %s\n", strings.Join(applied, ", "))
				}
				ran = true
			}
			if cfg.Storage.ClickhouseDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
				if err != nil {
					return fmt.Errorf("migrate clickhouse: %w", err)
				}
				conn.Close()
				printf(cmd, "clickhouse: migrated\n")
				ran = true
			}
			if !ran {
				printf(cmd, "no database configured\n")
			}
			return nil
		},
	}
}

func newConfigCmd(g *globals) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.Redacted().Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			mode := "live"
			if cfg.App.DryRun {
				mode = "dry run"
			}
			printf(cmd, "configuration valid (%s, strategies: %v)\n", mode, kindNames(cfg.Scanner.Enabled()))
			return nil
		},
	})

	return configCmd
}
