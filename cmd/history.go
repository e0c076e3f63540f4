/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/perevir/internal/report"
	"github.com/valpere/perevir/internal/store"
)

var (
	historyLimit int
	historyStats bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished workflow runs",
	Long: `List finished runs, newest first.

Use "perevir history show <run-id>" for the full decision trail of one run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(appConfig.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		ctx := context.Background()

		if historyStats {
			stats, err := db.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to load stats: %w", err)
			}
			fmt.Printf("Total runs:      %d\n", stats.Total)
			fmt.Printf("Published:       %d\n", stats.Published)
			fmt.Printf("Rejected:        %d\n", stats.Rejected)
			fmt.Printf("Pending review:  %d\n", stats.PendingReview)
			fmt.Printf("Failed:          %d\n", stats.Failed)
			return nil
		}

		runs, err := db.ListRuns(ctx, historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUNIT\tPAIR\tSTATE\tATTEMPTS\tFINISHED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s→%s\t%s\t%d\t%s\n",
				r.ID, r.UnitKey, r.SourceLang, r.TargetLang, r.State, r.AttemptCount,
				r.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var (
	showHTML    bool
	showPlain   bool
	showOutFile string
)

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full decision trail of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(appConfig.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		run, err := db.GetRun(context.Background(), args[0])
		if err != nil {
			return err
		}

		if showHTML && showPlain {
			return fmt.Errorf("--html and --plain are mutually exclusive")
		}

		md := report.BuildMarkdown(run)
		content := md
		switch {
		case showHTML:
			content = report.ToHTML([]byte(md))
		case showPlain:
			content = report.ToPlainText([]byte(md))
		}

		if showOutFile != "" {
			if err := os.WriteFile(showOutFile, []byte(content), 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Printf("Report written to %s\n", showOutFile)
			return nil
		}
		fmt.Println(content)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Print outcome totals instead of the run list")

	historyShowCmd.Flags().BoolVar(&showHTML, "html", false, "Render the report as HTML")
	historyShowCmd.Flags().BoolVar(&showPlain, "plain", false, "Render the report as plain text with Markdown markup removed")
	historyShowCmd.Flags().StringVarP(&showOutFile, "output", "o", "", "Write the report to a file instead of stdout")

	historyCmd.AddCommand(historyShowCmd)
}
