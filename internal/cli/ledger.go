package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"video_reposter/internal/domain"
	"video_reposter/internal/ledger"
)

var (
	ledgerLimit   int
	resolvePostID string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the published items ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List published items, newest last",
	RunE:  ledgerListAction,
}

var ledgerResolveCmd = &cobra.Command{
	Use:   "resolve <kind/source/item>",
	Short: "Resolve an item whose publish outcome is unknown",
	Long:  "resolve settles a held item by hand. With --post-id the post found on the destination is recorded as published; without it the marker is dropped and the next pass publishes the item again.",
	Args:  cobra.ExactArgs(1),
	RunE:  ledgerResolveAction,
}

func init() {
	ledgerListCmd.Flags().IntVarP(&ledgerLimit, "limit", "n", 0, "show only the last n records (0 shows all)")
	ledgerResolveCmd.Flags().StringVar(&resolvePostID, "post-id", "", "id of the post already live on the destination")
	ledgerCmd.AddCommand(ledgerListCmd, ledgerResolveCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func parseItemKey(s string) (domain.ItemKey, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return domain.ItemKey{}, fmt.Errorf("item key %q: want kind/source/item", s)
	}
	key := domain.ItemKey{Kind: domain.SourceKind(parts[0]), SourceID: parts[1], ItemID: parts[2]}
	if !key.Kind.Valid() {
		return domain.ItemKey{}, fmt.Errorf("item key %q: unknown kind %q", s, parts[0])
	}
	return key, nil
}

func ledgerResolveAction(cmd *cobra.Command, args []string) error {
	key, err := parseItemKey(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger("error")

	st, err := openStores(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	l := ledger.New(st.ledger, logger)
	if err := l.Load(ctx); err != nil {
		return err
	}

	pending, ok := l.Pending(key)
	if !ok {
		return errors.New("no pending marker for " + key.String())
	}

	out := cmd.OutOrStdout()
	if resolvePostID == "" {
		if err := l.ClearPending(ctx, key); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s released, it will be published on the next pass\n", key)
		return nil
	}

	if _, err := l.Record(ctx, key, pending.DestinationID, resolvePostID); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s recorded as %s on %s\n", key, resolvePostID, pending.DestinationID)
	return nil
}

func ledgerListAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger("error")

	st, err := openStores(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	l := ledger.New(st.ledger, logger)
	if err := l.Load(ctx); err != nil {
		return err
	}

	records := l.Records()
	if ledgerLimit > 0 && len(records) > ledgerLimit {
		records = records[len(records)-ledgerLimit:]
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PUBLISHED\tITEM\tDESTINATION\tPOST")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.PublishedAt.Local().Format(time.DateTime), r.Key, r.DestinationID, r.DestinationPostID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d of %d records\n", len(records), l.Len())

	if pending := l.PendingPosts(); len(pending) > 0 {
		fmt.Fprintln(out, "\npending, outcome unknown:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ATTEMPTED\tITEM\tDESTINATION\tMEDIA")
		for _, p := range pending {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				p.AttemptedAt.Local().Format(time.DateTime), p.Key, p.DestinationID, p.MediaID)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if st.totals == nil {
		return nil
	}
	totals, err := st.totals.Totals(ctx)
	if err != nil {
		return fmt.Errorf("load destination totals: %w", err)
	}
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintln(out, "\ntotals:")
	for _, id := range ids {
		fmt.Fprintf(out, "  %s\t%d\n", id, totals[id])
	}
	return nil
}
