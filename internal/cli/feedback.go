package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/engine"
	"github.com/engramhq/engram/internal/store"
)

var rememberCmd = &cobra.Command{
	Use:   "remember <memory-id>",
	Short: "Promote a memory to long-term with boosted importance",
	Args:  cobra.ExactArgs(1),
	RunE:  feedbackRun(store.FeedbackRemember),
}

var pinCmd = &cobra.Command{
	Use:   "pin <memory-id>",
	Short: "Pin a memory, exempting it from decay",
	Args:  cobra.ExactArgs(1),
	RunE:  feedbackRun(store.FeedbackPin),
}

var forgetCmd = &cobra.Command{
	Use:   "forget <memory-id>",
	Short: "Mark a memory forgotten",
	Args:  cobra.ExactArgs(1),
	RunE:  feedbackRun(store.FeedbackForget),
}

func feedbackRun(kind string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
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
		res, err := eng.AddFeedback(kind, args[0])
		if err != nil {
			return err
		}
		if !res.Applied {
			return fmt.Errorf("%s: %s", kind, res.Reason)
		}
		fmt.Printf("%s applied to %s\n", kind, args[0])
		return nil
	}
}
