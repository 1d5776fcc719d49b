// cmd/tools/nlp-inspect/main.go
//
// nlp-inspect runs the analysis pipeline outside the worker manager. It is
// meant for tuning the knowledge tables and for reading back intent
// statistics from the analytics index.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath    string
	knowledgePath string
)

var rootCmd = &cobra.Command{
	Use:           "nlp-inspect",
	Short:         "Inspect the agribot analysis pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults to the worker manager lookup)")
	rootCmd.PersistentFlags().StringVar(&knowledgePath, "knowledge", "", "directory overriding the built-in knowledge tables")

	rootCmd.AddCommand(analyzeCmd, knowledgeCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
