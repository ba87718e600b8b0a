package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wallet/internal/amqp"
	"wallet/internal/config"
	"wallet/internal/log"
	"wallet/internal/services"
	"wallet/internal/view"
)

// errNotDurable stops one-shot writes that would vanish with the process.
var errNotDurable = errors.New("the memory backend is discarded when the command exits; set DATA_BACKEND to sqlite, postgres or mongo")

const notifyUsage = "base URL of a running wallet server to reload, e.g. http://localhost:8081"

// withService opens the ledger for a one-shot command. Malformed storage
// always halts here; only serve may reset it.
func (a *app) withService(ctx context.Context, fn func(*services.WalletService) error) error {
	store, res, err := a.openLedger(ctx, config.OnMalformedHalt)
	if err != nil {
		return err
	}
	defer res.Close()
	return fn(services.NewWalletService(store, nil, a.logger))
}

// mutate runs fn against durable storage and then raises storage-imported,
// so a running server reloads the slot instead of overwriting it with its
// stale list.
func (a *app) mutate(cmd *cobra.Command, notifyURL string, fn func(*services.WalletService) error) error {
	if !a.cfg.Durable() {
		return errNotDurable
	}
	if err := a.withService(cmd.Context(), fn); err != nil {
		return err
	}
	notified, err := a.announce(cmd.Context(), notifyURL, "wallet "+cmd.Name())
	if err != nil {
		return fmt.Errorf("saved, but %w", err)
	}
	if notified > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "(%d listeners notified)\n", notified)
	}
	return nil
}

// announce publishes storage-imported on AMQP when configured and posts it
// to notifyURL when given. It returns how many listeners were told.
func (a *app) announce(ctx context.Context, notifyURL, source string) (int, error) {
	notified := 0
	if a.cfg.AMQPURL != "" {
		if err := a.publishImported(ctx, source); err != nil {
			return notified, fmt.Errorf("AMQP notification failed: %w", err)
		}
		notified++
	}
	if notifyURL != "" {
		if err := notifyServer(ctx, notifyURL, a.cfg.StorageKey, source); err != nil {
			return notified, fmt.Errorf("notifying %s failed: %w", notifyURL, err)
		}
		notified++
	}
	return notified, nil
}

func (a *app) addCmd() *cobra.Command {
	var in services.Input
	var notify string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a transaction",
		Example: `  wallet add --type expense --description "Rent" --amount 400,50
  wallet add --type income --date 2024-01-31 --description Salary --amount 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.mutate(cmd, notify, func(svc *services.WalletService) error {
				t, err := svc.AddTransaction(cmd.Context(), in)
				if err != nil {
					return err
				}
				index, _ := svc.Store().IndexOf(t.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "added #%d %s %s %q %s\n",
					index, t.Type, t.Date, t.Description, t.Amount)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Type, "type", "", "income or expense")
	cmd.Flags().StringVar(&in.Date, "date", "", "YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "what it was")
	cmd.Flags().StringVar(&in.Amount, "amount", "", "unsigned amount, dot or comma decimals")
	cmd.Flags().StringVar(&notify, "notify", "", notifyUsage)
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var typ, keyword string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show transactions, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := view.ParseTypeFilter(typ)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *services.WalletService) error {
				rows := svc.Project(cmd.Context(), view.Criteria{Type: filter, Keyword: keyword})
				return writeRows(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "all", "all, income or expense")
	cmd.Flags().StringVarP(&keyword, "query", "q", "", "case-insensitive description substring")
	return cmd
}

func writeRows(out io.Writer, rows []view.Row) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tTYPE\tDATE\tDESCRIPTION\tAMOUNT")
	for _, row := range rows {
		t := row.Transaction
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", row.Index, t.Type, t.Date, t.Description, t.Amount)
	}
	return tw.Flush()
}

func (a *app) deleteCmd() *cobra.Command {
	var notify string
	cmd := &cobra.Command{
		Use:   "delete INDEX",
		Short: "Remove the transaction at INDEX in the full list (see wallet list)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			return a.mutate(cmd, notify, func(svc *services.WalletService) error {
				if err := svc.DeleteAt(cmd.Context(), index); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted #%d, %d left\n", index, svc.Store().Len())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notify, "notify", "", notifyUsage)
	return cmd
}

func (a *app) totalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Show income, expense and balance over every transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *services.WalletService) error {
				totals, err := svc.GetTotals(cmd.Context())
				if err != nil {
					return err
				}
				f := totals.Format()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 1, ' ', tabwriter.AlignRight)
				fmt.Fprintf(tw, "Income:\t%s\t\n", f.Income)
				fmt.Fprintf(tw, "Expense:\t%s\t\n", f.Expense)
				fmt.Fprintf(tw, "Balance:\t%s\t\n", f.Balance)
				return tw.Flush()
			})
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	var notify, source string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the stored list with FILE and signal storage-imported",
		Long: `Import writes FILE into the storage slot as-is; its content is not checked.
A running server learns about it through AMQP when AMQP_URL is set, and through
--notify when given. A malformed file is rejected by the server on reload and
the server keeps its current list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !a.cfg.Durable() {
				return errNotDurable
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if source == "" {
				source = filepath.Base(args[0])
			}

			res, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Close()
			if err := res.Store.Set(ctx, a.cfg.StorageKey, string(data)); err != nil {
				return fmt.Errorf("write slot %q: %w", a.cfg.StorageKey, err)
			}
			a.logger.Info("Storage slot replaced",
				log.FieldOperation, log.OpImport,
				log.FieldKey, a.cfg.StorageKey,
				"source", source,
				"bytes", len(data))

			notified, err := a.announce(ctx, notify, source)
			if err != nil {
				return fmt.Errorf("imported, but %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %s into %q (%d listeners notified)\n", source, a.cfg.StorageKey, notified)
			return nil
		},
	}
	cmd.Flags().StringVar(&notify, "notify", "", notifyUsage)
	cmd.Flags().StringVar(&source, "source", "", "label recorded with the signal (default file name)")
	return cmd
}

func (a *app) publishImported(ctx context.Context, source string) error {
	client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.PublishStorageImported(ctx, a.cfg.StorageKey, source)
}

func notifyServer(ctx context.Context, baseURL, key, source string) error {
	body, err := json.Marshal(map[string]string{"key": key, "source": source})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/storage/imported", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server answered %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}
