package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localmem/memdex/internal/store"
)

var (
	listFolder string
	listTier   string
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed memories, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		memories, err := st.List(cmd.Context(), store.ListParams{
			SpecFolder: listFolder,
			Tier:       listTier,
			Status:     listStatus,
			Limit:      listLimit,
		})
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(memories)
		}
		if len(memories) == 0 {
			fmt.Println("no memories")
			return nil
		}
		for _, m := range memories {
			fmt.Printf("%6d  %-14s %-8s %s  %s\n",
				m.ID, "["+m.Tier+"]", m.Status, m.CreatedAt.Format("2006-01-02"), m.Title)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listFolder, "folder", "f", "", "filter by spec folder")
	listCmd.Flags().StringVar(&listTier, "tier", "", "filter by importance tier")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by embedding status")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "max rows")
	rootCmd.AddCommand(listCmd)
}
