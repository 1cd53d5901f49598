package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyRepair bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check record/vector consistency",
	Long: `Verify reports orphaned vectors and success records missing their vector.
It never modifies anything unless --repair is given, which deletes orphans
and requeues vector-less records for embedding.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := st.VerifyIntegrity(cmd.Context())
		if err != nil {
			return err
		}

		if flagJSON && !verifyRepair {
			return printJSON(report)
		}

		if report.IsConsistent {
			fmt.Println("consistent")
		} else {
			fmt.Printf("INCONSISTENT: %d orphaned vectors, %d missing vectors\n",
				len(report.OrphanedVectors), len(report.MissingVectors))
		}
		if report.Degraded {
			fmt.Printf("backend %s DEGRADED\n", report.Backend)
		}

		if verifyRepair && !report.IsConsistent {
			fixed, err := st.Repair(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(fixed)
			}
			fmt.Printf("repaired: removed %d vectors, requeued %d records\n",
				fixed.VectorsRemoved, fixed.RecordsRequeued)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyRepair, "repair", false, "fix reported inconsistencies")
	rootCmd.AddCommand(verifyCmd)
}
