package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-core/internal/app"
	"github.com/odyssey-erp/odyssey-core/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-core/internal/platform/db"
	"github.com/odyssey-erp/odyssey-core/internal/sequence"
)

type sequenceFlags struct {
	catalogPath string
	timeout     time.Duration
}

func (f *sequenceFlags) catalog() (sequence.Catalog, error) {
	return app.LoadSequenceCatalog(&app.Config{SequenceCatalogPath: f.catalogPath})
}

// offlineIssuer serves catalog-only operations; it never touches a store.
func (f *sequenceFlags) offlineIssuer() (*sequence.Issuer, error) {
	catalog, err := f.catalog()
	if err != nil {
		return nil, err
	}
	return sequence.NewIssuer(catalog, nil, sequence.RetryConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil), nil
}

// connect builds an issuer against the configured store. The returned func
// releases connections.
func (f *sequenceFlags) connect(ctx context.Context) (*sequence.Issuer, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if f.catalogPath != "" {
		cfg.SequenceCatalogPath = f.catalogPath
	}
	catalog, err := app.LoadSequenceCatalog(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg)

	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	var store sequence.Store
	switch cfg.SequenceBackend {
	case app.BackendRedis:
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		store, err = app.NewSequenceStore(cfg, nil, client)
		if err != nil {
			release()
			return nil, nil, err
		}
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: 2})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		store, err = app.NewSequenceStore(cfg, pool, nil)
		if err != nil {
			release()
			return nil, nil, err
		}
	}
	return sequence.NewIssuer(catalog, store, app.SequenceRetry(cfg), logger, nil), release, nil
}

func sequenceCmd() *cobra.Command {
	flags := &sequenceFlags{}
	cmd := &cobra.Command{
		Use:     "sequence",
		Aliases: []string{"seq"},
		Short:   "Inspect and issue document numbers",
	}
	cmd.PersistentFlags().StringVar(&flags.catalogPath, "catalog", "", "YAML seed catalog (defaults to the stock catalog)")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "Timeout for store operations")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List seed definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := flags.offlineIssuer()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSCOPE\tNEXT")
			for _, p := range issuer.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Key, p.Scope, p.Formatted)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "peek KEY",
		Short: "Preview the seed of a sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := flags.offlineIssuer()
			if err != nil {
				return err
			}
			p, err := issuer.Peek(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), p)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "format KEY VALUE",
		Short: "Render VALUE with the prefix and padding of KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || value < 0 {
				return fmt.Errorf("value must be a non-negative integer, got %q", args[1])
			}
			issuer, err := flags.offlineIssuer()
			if err != nil {
				return err
			}
			out, err := issuer.Format(args[0], value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "current KEY",
		Short: "Show the next number held by the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			issuer, release, err := flags.connect(ctx)
			if err != nil {
				return err
			}
			defer release()
			p, err := issuer.Current(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), p)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "issue KEY",
		Short: "Issue the next number for KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			issuer, release, err := flags.connect(ctx)
			if err != nil {
				return err
			}
			defer release()
			issued, err := issuer.Issue(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), issued)
		},
	})
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
