package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/localmem/memdex/internal/trigger"
)

var triggersLimit int

var triggersCmd = &cobra.Command{
	Use:   "triggers <prompt...>",
	Short: "Match a prompt against stored trigger phrases",
	Long: `Triggers checks which memories' trigger phrases occur in the prompt, on
word boundaries, without running a search. Useful for deciding which
memories to surface before a conversation turn.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ttl := time.Duration(cfg.Trigger.CacheTTLSeconds) * time.Second
		m := trigger.NewMatcher(st, ttl)

		matches, err := m.Match(cmd.Context(), strings.Join(args, " "), triggersLimit)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(matches)
		}
		if len(matches) == 0 {
			fmt.Println("no trigger matches")
			return nil
		}
		for _, hit := range matches {
			fmt.Printf("%6d  [%s]  %s\n", hit.MemoryID, hit.Tier, strings.Join(hit.MatchedPhrases, ", "))
		}
		return nil
	},
}

func init() {
	triggersCmd.Flags().IntVarP(&triggersLimit, "limit", "n", 0, "max matches (0 = all)")
	rootCmd.AddCommand(triggersCmd)
}
