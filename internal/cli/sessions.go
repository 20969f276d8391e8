package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramhq/engram/internal/config"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent sessions",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "max sessions to list")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openDB(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.GetRecentSessions(sessionsLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	for _, s := range sessions {
		consolidated := "-"
		if s.ConsolidatedAt != nil {
			consolidated = "consolidated"
		}
		started := time.UnixMilli(s.StartedAt).Format(time.RFC3339)
		fmt.Printf("%-10s %-12s %s  %s  %s\n", s.Status, consolidated, started, s.SessionID, s.Project)
	}
	return nil
}
