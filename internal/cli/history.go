package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a memory's audit trail",
	Long: `History lists the append-only audit entries for a memory: creation,
updates, embedding attempts, and deletion. Entries survive the record.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}

		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.History(cmd.Context(), id)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("no history")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-8s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action)
			if e.NewValues != "" {
				fmt.Printf("  %s", e.NewValues)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
