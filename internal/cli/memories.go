package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/engine"
)

var (
	memoriesStore string
	memoriesScope string
	memoriesLimit int
)

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "List memories by strength",
	RunE:  runMemories,
}

func init() {
	memoriesCmd.Flags().StringVar(&memoriesStore, "store", "", "filter by store (stm|ltm)")
	memoriesCmd.Flags().StringVar(&memoriesScope, "scope", "", "restrict to a project scope (plus user-level memories)")
	memoriesCmd.Flags().IntVar(&memoriesLimit, "limit", 0, "max results (default from config)")
}

func runMemories(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := zap.NewNop()

	db, err := openDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ranker := engine.NewRanker(db, cfg, logger)

	var items []engine.IndexItem
	if cmd.Flags().Changed("scope") || memoriesScope != "" {
		items, err = ranker.RetrieveByScope(engine.ScopeOptions{ProjectScope: memoriesScope, Limit: memoriesLimit})
	} else {
		items, err = ranker.RetrieveIndex(engine.IndexQuery{Store: memoriesStore, Limit: memoriesLimit})
	}
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("no memories stored")
		return nil
	}
	for _, item := range items {
		fmt.Printf("%.3f  [%s/%s]  %s  %s\n", item.Strength, item.Store, item.Classification, item.ID, item.Summary)
	}
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory counts by store and status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		db, err := openDB(cfg, zap.NewNop())
		if err != nil {
			return err
		}
		defer db.Close()

		counts, err := db.CountByStoreAndStatus()
		if err != nil {
			return err
		}
		for _, c := range counts {
			fmt.Printf("%-4s %-10s %d\n", c.Store, c.Status, c.Count)
		}
		return nil
	},
}
