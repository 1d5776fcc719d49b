// cmd/tools/nlp-inspect/stats.go
package main

import (
	"context"
	"fmt"
	"time"

	"agribot-workers/internal/analytics"
	"agribot-workers/internal/common/config"
	"agribot-workers/internal/common/database"
	"agribot-workers/internal/common/logger"

	"github.com/spf13/cobra"
)

var statsWindow time.Duration

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print intent statistics from the analytics index",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().DurationVar(&statsWindow, "since", 24*time.Hour, "how far back to look")
}

func runStats(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch is not configured")
	}

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	indexer := analytics.NewIndexer(es.Client, cfg.Analytics.Index, logger.NewNoOpLogger())
	stats, err := indexer.IntentStats(ctx, time.Now().Add(-statsWindow))
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), stats)
}
