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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/perevir/internal/detector"
	"github.com/valpere/perevir/internal/model"
	"github.com/valpere/perevir/internal/report"
	"github.com/valpere/perevir/internal/store"
)

// errNotPublished marks a run that finished without publishing. Execute maps
// it to exit code 2 so scripts can branch on the gate outcome; returning an
// error instead of exiting here lets the deferred cleanup run.
var errNotPublished = errors.New("unit not published")

var (
	runInputFile  string
	runOutputFile string
	runSourceLang string
	runTargetLang string
	runUnitKey    string
	runRisk       string
	runProduct    string
	runStyleFile  string
	runNoSave     bool
	runShowReport bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one unit through the gated workflow",
	Long: `Translate a single content unit and gate the result.

The source text is read from the input file. The glossary for the language
pair is loaded from the database and enforced by the assessors. The unit is
published only when every assessor signs off; otherwise it is rejected,
regenerated with feedback, or escalated to human review.

Example:
  perevir run -i faq-password-reset.txt -t uk --key faq.password-reset --risk financial`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		srcBytes, err := os.ReadFile(runInputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		text := string(srcBytes)

		ctx := context.Background()

		if runSourceLang == "auto" {
			det := detector.New()
			if detected, ok := det.DetectISO(text); ok {
				runSourceLang = detected
				fmt.Fprintf(os.Stderr, "Detected source language: %s\n", runSourceLang)
			} else {
				return fmt.Errorf("could not detect source language, pass --source")
			}
		}

		var styleGuide map[string]string
		if runStyleFile != "" {
			styleBytes, err := os.ReadFile(runStyleFile)
			if err != nil {
				return fmt.Errorf("failed to read style guide: %w", err)
			}
			styleGuide = parseStyleGuide(string(styleBytes))
		}

		db, err := store.New(appConfig.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		glossary, err := db.GetGlossaryTerms(ctx, runSourceLang, runTargetLang)
		if err != nil {
			return fmt.Errorf("failed to load glossary: %w", err)
		}

		key := runUnitKey
		if key == "" {
			key = filepath.Base(runInputFile)
		}

		unit := model.TranslationUnit{
			Key:         key,
			SourceText:  text,
			SourceLang:  runSourceLang,
			TargetLang:  runTargetLang,
			Glossary:    glossary,
			StyleGuide:  styleGuide,
			RiskProfile: runRisk,
			Product:     runProduct,
		}

		engine, err := buildEngine(appConfig)
		if err != nil {
			return err
		}

		run, runErr := engine.Run(ctx, unit)

		if !runNoSave {
			if saveErr := db.SaveRun(ctx, run); saveErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save run: %v\n", saveErr)
			}
		}

		if runErr != nil {
			return fmt.Errorf("run %s failed: %w", run.ID, runErr)
		}

		if runShowReport {
			fmt.Println(report.BuildMarkdown(run))
		}

		switch run.State {
		case model.StatePublished:
			if runOutputFile != "" {
				if err := os.MkdirAll(filepath.Dir(runOutputFile), 0755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
				if err := os.WriteFile(runOutputFile, []byte(run.FinalText), 0644); err != nil {
					return fmt.Errorf("failed to write output file: %w", err)
				}
			} else if !runShowReport {
				fmt.Println(run.FinalText)
			}
			fmt.Fprintf(os.Stderr, "Published after %d attempt(s). Run ID: %s\n", run.AttemptCount, run.ID)
			return nil
		default:
			decision, _ := run.LastDecision()
			fmt.Fprintf(os.Stderr, "Not published (%s): %s\nRun ID: %s\n", run.State, decision.Message, run.ID)
			return errNotPublished
		}
	},
}

// parseStyleGuide reads "aspect: instruction" lines; lines without a colon
// and comment lines are skipped.
func parseStyleGuide(content string) map[string]string {
	guide := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		guide[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return guide
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runInputFile, "input", "i", "", "Input file with the source text (required)")
	runCmd.Flags().StringVarP(&runOutputFile, "output", "o", "", "Output file for the published translation (default: stdout)")
	runCmd.Flags().StringVarP(&runSourceLang, "source", "s", "auto", "Source language code")
	runCmd.Flags().StringVarP(&runTargetLang, "target", "t", "", "Target language code (required)")
	runCmd.Flags().StringVar(&runUnitKey, "key", "", "Stable unit key (default: input file name)")
	runCmd.Flags().StringVar(&runRisk, "risk", "", "Risk profile for compliance checks (e.g. financial, medical)")
	runCmd.Flags().StringVar(&runProduct, "product", "", "Product name for context")
	runCmd.Flags().StringVar(&runStyleFile, "style-guide", "", "File with style guide notes for the target locale")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Do not persist the run to the database")
	runCmd.Flags().BoolVar(&runShowReport, "report", false, "Print the full decision trail as Markdown")

	runCmd.MarkFlagRequired("input")
	runCmd.MarkFlagRequired("target")
}
