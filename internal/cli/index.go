package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/localmem/memdex/internal/store"
)

var (
	indexFolder   string
	indexTitle    string
	indexTier     string
	indexTriggers string
	indexContext  string
	indexChannel  string
	indexSession  string
)

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index a memory artifact",
	Long: `Index reads a memory artifact file and adds it to the index. The file
itself stays where it is; memdex only records its path, derived metadata,
trigger phrases, and embedding.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read artifact: %w", err)
		}

		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		session := indexSession
		if session == "" {
			session = uuid.NewString()
		}

		var phrases []string
		if indexTriggers != "" {
			for _, p := range strings.Split(indexTriggers, ",") {
				if p = strings.TrimSpace(p); p != "" {
					phrases = append(phrases, p)
				}
			}
		}

		m, err := st.Index(cmd.Context(), store.IndexParams{
			SpecFolder:     indexFolder,
			FilePath:       path,
			Title:          indexTitle,
			Content:        string(content),
			TriggerPhrases: phrases,
			Tier:           indexTier,
			ContextType:    indexContext,
			Channel:        indexChannel,
			SessionID:      session,
		})
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(m)
		}
		fmt.Printf("indexed %d  %s  [%s] status=%s\n", m.ID, m.FilePath, m.Tier, m.Status)
		if len(m.TriggerPhrases) > 0 {
			fmt.Printf("triggers: %s\n", strings.Join(m.TriggerPhrases, ", "))
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVarP(&indexFolder, "folder", "f", "", "spec folder grouping the artifact (required)")
	indexCmd.Flags().StringVarP(&indexTitle, "title", "t", "", "title (default: first line of content)")
	indexCmd.Flags().StringVar(&indexTier, "tier", "", "importance tier (default normal)")
	indexCmd.Flags().StringVar(&indexTriggers, "triggers", "", "comma-separated trigger phrases (default: extracted)")
	indexCmd.Flags().StringVar(&indexContext, "context-type", "", "context type label")
	indexCmd.Flags().StringVar(&indexChannel, "channel", "", "originating channel")
	indexCmd.Flags().StringVar(&indexSession, "session", "", "session id (default: random)")
	indexCmd.MarkFlagRequired("folder")
	rootCmd.AddCommand(indexCmd)
}
