package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a directory as a location",
	Long: `Walk the directory and record every file and directory as a path record.
Files listed in .fiignore are skipped. Re-indexing refreshes sizes and
turns changed files back into orphans.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		loc, res, err := Svc.Index(cmd.Context(), pathArg(args))
		if err != nil {
			return err
		}

		fmt.Printf("✅ Indexed %s (location #%d)\n", loc.Path, loc.ID)
		fmt.Printf("   files: %d  dirs: %d  ignored: %d  bytes: %d  in %s\n",
			res.Files, res.Dirs, res.Ignored, res.Bytes, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
