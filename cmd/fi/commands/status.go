package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show identification progress of a location",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := Svc.Status(cmd.Context(), pathArg(args))
		if err != nil {
			return err
		}

		fmt.Printf("Location #%d: %s\n", st.Location.ID, st.Location.Path)
		fmt.Printf("  files:   %d\n", st.Stats.FilePaths)
		fmt.Printf("  orphans: %d\n", st.Stats.Orphans)
		fmt.Printf("  objects: %d\n", st.Stats.Objects)

		if cp := st.Checkpoint; cp != nil {
			fmt.Printf("⏸️  Unfinished identification: %d steps, %d files, cursor %d (%s scan)\n",
				cp.Stats.Steps, cp.Stats.Orphans, cp.Cursor, cp.Options.Mode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
