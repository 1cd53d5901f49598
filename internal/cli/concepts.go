package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localmem/memdex/internal/store"
)

var (
	conceptsLimit  int
	conceptsFolder string
	conceptsMinSim float64
)

var conceptsCmd = &cobra.Command{
	Use:   "concepts <concept> <concept> [concept...]",
	Short: "Find memories related to all given concepts",
	Long: `Concepts embeds each argument separately and returns memories whose
similarity clears the floor for every concept, ranked by average
similarity. Takes 2 to 5 concepts.`,
	Args: cobra.RangeArgs(2, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.MultiConceptSearch(cmd.Context(), store.ConceptParams{
			Concepts:      args,
			Limit:         conceptsLimit,
			SpecFolder:    conceptsFolder,
			MinSimilarity: conceptsMinSim,
		})
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(results)
		}
		if len(results) == 0 {
			fmt.Println("no memories relate to all concepts")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%6d  avg=%.1f %v  %s\n", r.ID, r.AvgSimilarity, r.PerConcept, r.Title)
			fmt.Printf("        %s\n", r.FilePath)
		}
		return nil
	},
}

func init() {
	conceptsCmd.Flags().IntVarP(&conceptsLimit, "limit", "n", 10, "max results")
	conceptsCmd.Flags().StringVarP(&conceptsFolder, "folder", "f", "", "restrict to a spec folder")
	conceptsCmd.Flags().Float64Var(&conceptsMinSim, "min-similarity", 0, "per-concept similarity floor (default 30)")
	rootCmd.AddCommand(conceptsCmd)
}
