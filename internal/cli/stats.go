package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics and backend health",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(stats)
		}

		fmt.Printf("database: %s (%.1f KB)\n", cfg.DBPath, float64(stats.DBSizeBytes)/1024)
		fmt.Printf("backend:  %s", stats.Backend)
		if stats.Degraded {
			fmt.Print("  DEGRADED")
		}
		fmt.Println()
		fmt.Printf("memories: %d  checkpoints: %d\n", stats.TotalMemories, stats.Checkpoints)

		if len(stats.CountsByStatus) > 0 {
			fmt.Println("\nby status:")
			for k, v := range stats.CountsByStatus {
				fmt.Printf("  %-10s %d\n", k, v)
			}
		}
		if len(stats.CountsByTier) > 0 {
			fmt.Println("by tier:")
			for k, v := range stats.CountsByTier {
				fmt.Printf("  %-16s %d\n", k, v)
			}
		}
		if len(stats.CountsByFolder) > 0 {
			fmt.Println("by folder:")
			for k, v := range stats.CountsByFolder {
				fmt.Printf("  %-24s %d\n", k, v)
			}
		}
		if stats.LastCreated != nil {
			fmt.Printf("\nlast indexed: %s\n", stats.LastCreated.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
