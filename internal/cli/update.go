package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localmem/memdex/internal/store"
)

var (
	updateTitle    string
	updateSummary  string
	updateTier     string
	updateTriggers string
	updateContext  string
	updateChannel  string
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a memory's metadata",
	Long: `Update changes the given fields and leaves the rest alone. Changing the
title or summary re-extracts trigger phrases and regenerates the embedding.`,
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

		p := store.UpdateParams{}
		if cmd.Flags().Changed("title") {
			p.Title = &updateTitle
		}
		if cmd.Flags().Changed("summary") {
			p.Summary = &updateSummary
		}
		if cmd.Flags().Changed("tier") {
			p.Tier = &updateTier
		}
		if cmd.Flags().Changed("context-type") {
			p.ContextType = &updateContext
		}
		if cmd.Flags().Changed("channel") {
			p.Channel = &updateChannel
		}
		if cmd.Flags().Changed("triggers") {
			p.TriggerPhrases = []string{}
			for _, t := range strings.Split(updateTriggers, ",") {
				if t = strings.TrimSpace(t); t != "" {
					p.TriggerPhrases = append(p.TriggerPhrases, t)
				}
			}
		}

		m, err := st.Update(cmd.Context(), id, p)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(m)
		}
		fmt.Printf("updated %d  %s  [%s] status=%s\n", m.ID, m.Title, m.Tier, m.Status)
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVar(&updateSummary, "summary", "", "new summary")
	updateCmd.Flags().StringVar(&updateTier, "tier", "", "new importance tier")
	updateCmd.Flags().StringVar(&updateTriggers, "triggers", "", "replacement trigger phrases (comma-separated, empty re-extracts)")
	updateCmd.Flags().StringVar(&updateContext, "context-type", "", "new context type")
	updateCmd.Flags().StringVar(&updateChannel, "channel", "", "new channel")
	rootCmd.AddCommand(updateCmd)
}
