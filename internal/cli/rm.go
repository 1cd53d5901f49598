package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a memory from the index",
	Long: `Rm deletes the index record, its vector, and its full-text entry. The
artifact file on disk is yours and is not touched. History survives.`,
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

		ok, err := st.Delete(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("memory %d not found", id)
		}
		fmt.Printf("removed %d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
