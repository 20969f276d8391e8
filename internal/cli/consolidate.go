package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/engine"
)

var consolidateSession string

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run decay and consolidation as one transaction",
	RunE:  runConsolidate,
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateSession, "session", "", "mark this session consolidated (idempotent per session)")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openDB(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer db.Close()

	eng := engine.New(db, cfg, zap.NewNop())
	res, err := eng.EndSession(consolidateSession)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Printf("session %s already consolidated\n", consolidateSession)
		return nil
	}

	fmt.Printf("decayed %d, promoted %d, marked decayed %d, unchanged %d\n",
		res.MemoriesDecayed,
		len(res.Consolidation.Promoted),
		len(res.Consolidation.Decayed),
		len(res.Consolidation.Unchanged))
	return nil
}
