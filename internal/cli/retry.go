package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/localmem/memdex/internal/store"
)

var (
	retryForce bool
	retryWatch bool
	retrySpec  string
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-attempt pending and scheduled embedding retries",
	Long: `Retry sweeps records whose embedding has not succeeded. By default it
attempts pending records and retries whose backoff has lapsed; --force also
re-attempts terminally failed records. --watch keeps sweeping on a schedule
until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sweep := func() error {
			report, err := st.Retry(cmd.Context(), store.RetryParams{Force: retryForce})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(report)
			}
			fmt.Printf("attempted %d, succeeded %d, failed %d\n",
				report.Attempted, report.Succeeded, report.Failed)
			return nil
		}

		if !retryWatch {
			return sweep()
		}

		c := cron.New()
		if _, err := c.AddFunc(retrySpec, func() {
			if err := sweep(); err != nil {
				fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
			}
		}); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", retrySpec, err)
		}

		if err := sweep(); err != nil {
			return err
		}
		c.Start()
		defer c.Stop()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func init() {
	retryCmd.Flags().BoolVar(&retryForce, "force", false, "also re-attempt failed records")
	retryCmd.Flags().BoolVar(&retryWatch, "watch", false, "keep sweeping on a schedule")
	retryCmd.Flags().StringVar(&retrySpec, "every", "@every 1m", "watch schedule (cron syntax)")
	rootCmd.AddCommand(retryCmd)
}
