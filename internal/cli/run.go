package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer pending mentions once and exit",
		Long:  "Poll notifications once, answer up to MAX_MENTIONS_PER_RUN qualifying mentions, then exit. Meant for cron.",
		Args:  cobra.NoArgs,
		RunE:  runOnce,
	}

	RootCmd.AddCommand(cmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	logger := newLogger(os.Stdout)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("bot run started", "dry_run", cfg.DryRun, "max_mentions", cfg.MaxMentionsPerRun)
	answered, err := a.service.ProcessNotifications(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("bot run finished", "answered", answered)
	return nil
}
