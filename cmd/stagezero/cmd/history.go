package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hookline/stagezero/pkg/journal"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded launches from the journal",
	Long: `Read the launch journal and list recent launches with their terminal
phase and exit code. The journal lives on the container's filesystem
layer, so history spans restarts of the same container only.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of launches to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return fmt.Errorf("no journal path configured in the manifest")
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.Recent(historyLimit)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		out, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}
	if IsYAMLOutput() {
		out, err := yaml.Marshal(recs)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	if len(recs) == 0 {
		fmt.Println("No launches recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Run ID", "Service", "Phase", "Reason", "Exit", "Started", "Duration")
	for _, rec := range recs {
		table.Append(
			shortID(rec.RunID),
			rec.Service,
			string(rec.Phase),
			string(rec.Reason),
			fmt.Sprintf("%d", rec.ExitCode),
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			rec.FinishedAt.Sub(rec.StartedAt).Round(10*time.Millisecond).String(),
		)
	}
	table.Render()
	fmt.Printf("\nTotal launches: %d\n", len(recs))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
