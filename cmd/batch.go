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
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/valpere/perevir/internal/model"
	"github.com/valpere/perevir/internal/store"
)

var (
	batchInputFile   string
	batchOutputFile  string
	batchSourceLang  string
	batchTargetLang  string
	batchRisk        string
	batchProduct     string
	batchConcurrency int
	batchRateLimit   float64
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run a CSV of units through the gated workflow",
	Long: `Run many content units through the workflow.

The input CSV needs two columns: unit key and source text. Units run
concurrently up to --concurrency, throttled to --rate runs per second so
local model servers are not overwhelmed. A unit that fails does not stop
the batch.

The output CSV has columns: key, state, attempts, translation. The
translation column is empty unless the unit was published.

Example:
  perevir batch -i units.csv -o results.csv -s en -t uk --concurrency 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchInputFile == batchOutputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		f, err := os.Open(batchInputFile)
		if err != nil {
			return fmt.Errorf("failed to open input CSV: %w", err)
		}
		defer f.Close()

		records, err := csv.NewReader(f).ReadAll()
		if err != nil {
			return fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("CSV file is empty")
		}

		ctx := context.Background()

		db, err := store.New(appConfig.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		glossary, err := db.GetGlossaryTerms(ctx, batchSourceLang, batchTargetLang)
		if err != nil {
			return fmt.Errorf("failed to load glossary: %w", err)
		}

		engine, err := buildEngine(appConfig)
		if err != nil {
			return err
		}

		limiter := rate.NewLimiter(rate.Limit(batchRateLimit), 1)

		out := make([][]string, len(records))
		var mu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchConcurrency)

		for i, rec := range records {
			if len(rec) < 2 {
				out[i] = []string{rowKey(rec), "skipped", "0", ""}
				continue
			}
			key, text := rec[0], rec[1]

			g.Go(func() error {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}

				unit := model.TranslationUnit{
					Key:         key,
					SourceText:  text,
					SourceLang:  batchSourceLang,
					TargetLang:  batchTargetLang,
					Glossary:    glossary,
					RiskProfile: batchRisk,
					Product:     batchProduct,
				}

				run, runErr := engine.Run(gctx, unit)
				if saveErr := db.SaveRun(gctx, run); saveErr != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to save run for %s: %v\n", key, saveErr)
				}
				if runErr != nil {
					fmt.Fprintf(os.Stderr, "Unit %s failed: %v\n", key, runErr)
				}

				mu.Lock()
				out[i] = []string{key, string(run.State), fmt.Sprintf("%d", run.AttemptCount), run.FinalText}
				mu.Unlock()
				// Unit failures are recorded in the output, not propagated,
				// so one bad unit cannot cancel its siblings.
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		outFile, err := os.Create(batchOutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output CSV: %w", err)
		}
		defer outFile.Close()

		writer := csv.NewWriter(outFile)
		if err := writer.Write([]string{"key", "state", "attempts", "translation"}); err != nil {
			return fmt.Errorf("failed to write output CSV: %w", err)
		}
		published := 0
		for _, row := range out {
			if row == nil {
				continue
			}
			if row[1] == string(model.StatePublished) {
				published++
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write output CSV: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("failed to flush output CSV: %w", err)
		}

		fmt.Printf("Batch complete: %d/%d units published. Results: %s\n", published, len(records), batchOutputFile)
		return nil
	},
}

func rowKey(rec []string) string {
	if len(rec) > 0 {
		return rec[0]
	}
	return ""
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchInputFile, "input", "i", "", "Input CSV with key and source text columns (required)")
	batchCmd.Flags().StringVarP(&batchOutputFile, "output", "o", "", "Output CSV for results (required)")
	batchCmd.Flags().StringVarP(&batchSourceLang, "source", "s", "", "Source language code (required)")
	batchCmd.Flags().StringVarP(&batchTargetLang, "target", "t", "", "Target language code (required)")
	batchCmd.Flags().StringVar(&batchRisk, "risk", "", "Risk profile applied to every unit")
	batchCmd.Flags().StringVar(&batchProduct, "product", "", "Product name for context")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "Units processed in parallel")
	batchCmd.Flags().Float64Var(&batchRateLimit, "rate", 1, "Run starts per second")

	batchCmd.MarkFlagRequired("input")
	batchCmd.MarkFlagRequired("output")
	batchCmd.MarkFlagRequired("source")
	batchCmd.MarkFlagRequired("target")
}
