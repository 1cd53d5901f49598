package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkpointDesc string

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage named snapshots of the memory-set",
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Snapshot all memories under a unique name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		cp, err := st.CheckpointCreate(cmd.Context(), args[0], checkpointDesc)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cp)
		}
		fmt.Printf("checkpoint %q created (%d memories)\n", cp.Name, cp.MemoryCount)
		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		cps, err := st.CheckpointList(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cps)
		}
		if len(cps) == 0 {
			fmt.Println("no checkpoints")
			return nil
		}
		for _, cp := range cps {
			fmt.Printf("%-24s %4d memories  %s", cp.Name, cp.MemoryCount,
				cp.CreatedAt.Format("2006-01-02 15:04"))
			if cp.Description != "" {
				fmt.Printf("  %s", cp.Description)
			}
			fmt.Println()
		}
		return nil
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Replace all memories with a snapshot",
	Long: `Restore replaces the live memory-set with the named snapshot, removing
records indexed since. The swap is all-or-nothing: a failed restore leaves
live state untouched. History and other checkpoints survive.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.CheckpointRestore(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("restored checkpoint %q\n", args[0])
		return nil
	},
}

var checkpointRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ok, err := st.CheckpointDelete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("checkpoint %q not found", args[0])
		}
		fmt.Printf("deleted checkpoint %q\n", args[0])
		return nil
	},
}

func init() {
	checkpointCreateCmd.Flags().StringVarP(&checkpointDesc, "description", "d", "", "checkpoint description")
	checkpointCmd.AddCommand(checkpointCreateCmd, checkpointListCmd, checkpointRestoreCmd, checkpointRmCmd)
	rootCmd.AddCommand(checkpointCmd)
}
