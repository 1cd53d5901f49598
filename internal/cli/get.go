package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localmem/memdex/internal/store"
)

var getCmd = &cobra.Command{
	Use:   "get <id|path>",
	Short: "Load one memory and count the access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		p := store.LoadParams{}
		if id, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			p.ID = id
		} else {
			p.FilePath = args[0]
		}

		m, err := st.Load(cmd.Context(), p)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(m)
		}
		fmt.Printf("id:       %d\n", m.ID)
		fmt.Printf("folder:   %s\n", m.SpecFolder)
		fmt.Printf("path:     %s\n", m.FilePath)
		fmt.Printf("title:    %s\n", m.Title)
		fmt.Printf("tier:     %s\n", m.Tier)
		fmt.Printf("status:   %s", m.Status)
		if m.RetryCount > 0 {
			fmt.Printf(" (retries: %d)", m.RetryCount)
		}
		if m.FailureReason != "" {
			fmt.Printf(" reason: %s", m.FailureReason)
		}
		fmt.Println()
		if len(m.TriggerPhrases) > 0 {
			fmt.Printf("triggers: %s\n", strings.Join(m.TriggerPhrases, ", "))
		}
		fmt.Printf("accessed: %d times\n", m.AccessCount)
		fmt.Printf("created:  %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
		if m.Summary != "" {
			fmt.Printf("\n%s\n", m.Summary)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
