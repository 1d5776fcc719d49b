// cmd/tools/nlp-inspect/analyze.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp"

	"github.com/spf13/cobra"
)

var (
	previousIntent string
	season         string
	crops          []string
	compact        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [message...]",
	Short: "Analyse a message and print the full result as JSON",
	Long:  "Analyse a message with the rule-based pipeline. With no arguments the message is read from stdin.",
	RunE:  runAnalyze,
}

var knowledgeCmd = &cobra.Command{
	Use:   "check-knowledge [dir]",
	Short: "Validate a directory of knowledge tables",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := knowledgePath
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no directory given")
		}
		tables, err := knowledge.LoadDir(dir)
		if err != nil {
			return err
		}
		if _, err := nlp.NewProcessor(tables); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d intents, %d crops, %d regions\n",
			dir, len(tables.Intents.Intents), len(tables.Entities.Crops), len(tables.Entities.Regions))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&previousIntent, "previous-intent", "", "intent of the previous turn")
	analyzeCmd.Flags().StringVar(&season, "season", "", "planting, growing or harvest")
	analyzeCmd.Flags().StringSliceVar(&crops, "crops", nil, "crops already mentioned in the conversation")
	analyzeCmd.Flags().BoolVar(&compact, "compact", false, "print intent, confidence and entities only")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		text = strings.TrimSpace(string(raw))
	}

	tables, err := knowledge.Load(knowledgePath)
	if err != nil {
		return err
	}
	processor, err := nlp.NewProcessor(tables)
	if err != nil {
		return err
	}

	result := processor.Process(text, nlp.Context{
		PreviousIntent: previousIntent,
		CurrentTopic:   previousIntent,
		MentionedCrops: crops,
		Season:         season,
	})

	var out interface{} = result
	if compact {
		out = map[string]interface{}{
			"intent":       nlp.PrimaryIntent(result),
			"confidence":   nlp.IntentConfidence(result),
			"entities":     nlp.EntitySummary(result),
			"tone":         result.Sentiment.Tone,
			"agricultural": processor.Normalizer().IsAgricultural(result.Text),
		}
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
