package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/engine"
)

var (
	searchLimit int
	searchScope string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories by text relevance",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max results (default from config)")
	searchCmd.Flags().StringVar(&searchScope, "scope", "", "restrict to a project scope (plus user-level memories)")
}

func runSearch(cmd *cobra.Command, args []string) error {
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
	query := strings.Join(args, " ")

	var items []engine.IndexItem
	if cmd.Flags().Changed("scope") || searchScope != "" {
		items, err = ranker.SearchByScope(query, engine.ScopeOptions{ProjectScope: searchScope, Limit: searchLimit})
	} else {
		items, err = ranker.RetrieveIndex(engine.IndexQuery{Text: query, Limit: searchLimit})
	}
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("no memories matched")
		return nil
	}
	for _, item := range items {
		fmt.Printf("%.3f  [%s/%s]  %s  %s\n", item.Relevance, item.Store, item.Classification, item.ID, item.Summary)
	}
	return nil
}
