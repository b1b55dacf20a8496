package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"video_reposter/internal/config"
	"video_reposter/internal/router"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and show what a pass would use",
	RunE:  checkAction,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "config %s has problems:\n%v\n", configPath, err)
		return errors.New("config check failed")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tID\tLIMIT")
	for _, s := range cfg.Sources {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.Kind, s.ID, s.Limit)
	}
	fmt.Fprintln(w)

	accounts := cfg.DestinationAccounts()
	share := make(map[string]int)
	schedule := router.Schedule(accounts)
	for _, id := range schedule {
		share[id]++
	}
	fmt.Fprintln(w, "DESTINATION\tPLATFORM\tWEIGHT\tSHARE")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d/%d\n", a.ID, a.Platform, a.Weight(), share[a.ID], len(schedule))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nledger: %s", cfg.Ledger.Backend)
	if cfg.Ledger.Backend == config.LedgerFile {
		fmt.Fprintf(out, " (%s)", cfg.Ledger.Path)
	}
	fmt.Fprintf(out, "\ndownload dir: %s\nconfig OK\n", cfg.DownloadDir)
	return nil
}
