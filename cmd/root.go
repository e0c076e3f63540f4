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
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/perevir/internal/config"
	"github.com/valpere/perevir/internal/observability"
)

var version = "0.1.0"

var (
	configPath string
	appConfig  *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "perevir",
	Short: "Quality-gated translation workflow",
	Long: `A CLI application that translates short content units through a
gated workflow: an LLM translator produces a candidate, an independent
service back-translates it, a panel of assessors scores it, and a
deterministic gate decides whether to publish, reject, regenerate with
feedback, or escalate to human review.

Use "perevir run --help" for single-unit options.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg
		observability.Initialize(cfg.Logger)
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	// Flush the logger before deciding the process exit; os.Exit skips
	// deferred calls.
	observability.Sync()
	if code := exitCode(err); code != 0 {
		os.Exit(code)
	}
}

// exitCode maps a command error onto the process exit code: 0 for success,
// 2 for a run that finished without publishing, 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNotPublished):
		return 2
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML; defaults and PEREVIR_* env vars apply)")
}
