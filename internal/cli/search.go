package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localmem/memdex/internal/store"
)

var (
	searchLimit  int
	searchFolder string
	searchMinSim float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid full-text + semantic search",
	Long: `Search fuses full-text and vector retrieval with reciprocal rank fusion,
then adjusts scores for age, importance tier, and access count. With one
engine unavailable it degrades to the other.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.Search(cmd.Context(), store.SearchParams{
			Query:         strings.Join(args, " "),
			Limit:         searchLimit,
			SpecFolder:    searchFolder,
			MinSimilarity: searchMinSim,
		})
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(results)
		}
		if len(results) == 0 {
			fmt.Println("no results")
			return nil
		}
		for _, r := range results {
			sim := ""
			if r.Similarity > 0 {
				sim = fmt.Sprintf(" sim=%.1f", r.Similarity)
			}
			fmt.Printf("%6d  %-14s score=%.4f%s  %s\n", r.ID, "["+r.Tier+"]", r.Score, sim, r.Title)
			fmt.Printf("        %s\n", r.FilePath)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "max results")
	searchCmd.Flags().StringVarP(&searchFolder, "folder", "f", "", "restrict to a spec folder")
	searchCmd.Flags().Float64Var(&searchMinSim, "min-similarity", 0, "vector similarity floor (0-100)")
	rootCmd.AddCommand(searchCmd)
}
