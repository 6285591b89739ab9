package commands

import (
	"errors"
	"fmt"

	"fileident/pkg/job"
	"fileident/pkg/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var identifyReq service.IdentifyRequest

var identifyCmd = &cobra.Command{
	Use:   "identify [path]",
	Short: "Compute content ids for orphan files and link them to objects",
	Long: `Identify every orphan file of an indexed location: hash its content,
deduplicate by content id and link the file to its object.

The job checkpoints after every step. Interrupting it (Ctrl-C) keeps the
last checkpoint, and the next run resumes from there.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := identifyReq
		req.Path = pathArg(args)
		if req.ChunkSize == 0 {
			req.ChunkSize = viper.GetInt("identifier.chunk_size")
		}
		if req.PageSize == 0 {
			req.PageSize = viper.GetInt("identifier.page_size")
		}

		progress := func(r *job.Report) {
			fmt.Printf("\rIdentifying: %d files, %d objects", r.Stats.Orphans, r.Stats.CreatedObjects+r.Stats.LinkedObjects) // \r 简单进度条
		}

		report, err := Svc.Identify(cmd.Context(), req, progress)
		fmt.Println() // 换行
		if report != nil {
			printWarnings(report)
		}
		if errors.Is(err, job.ErrInterrupted) {
			fmt.Printf("⏸️  Interrupted after %d steps, checkpoint saved. Run again to resume.\n", report.Stats.Steps)
			return err
		}
		if err != nil {
			return err
		}

		s := report.Stats
		fmt.Printf("✅ Identified %d files in %s\n", s.Identified, report.Duration)
		fmt.Printf("   objects: %d created, %d linked  paths linked: %d  units: %d\n",
			s.CreatedObjects, s.LinkedObjects, s.LinkedFilePaths, s.Units)
		if s.Skipped > 0 {
			fmt.Printf("   skipped %d empty files\n", s.Skipped)
		}
		return nil
	},
}

func printWarnings(r *job.Report) {
	if !r.HasWarnings() {
		return
	}
	fmt.Printf("⚠️  %d files could not be identified:\n", len(r.Errors))
	for _, e := range r.Errors {
		fmt.Println("   -", e.String())
	}
}

func init() {
	f := identifyCmd.Flags()
	f.StringVar(&identifyReq.SubPath, "sub-path", "", "Only identify files below this directory of the location")
	f.BoolVar(&identifyReq.Shallow, "shallow", false, "Only identify the direct children of --sub-path (runs with priority, no checkpoint)")
	f.BoolVar(&identifyReq.WithPriority, "priority", false, "Dispatch work units to the priority queue")
	f.IntVar(&identifyReq.ChunkSize, "chunk-size", 0, "Work unit size (default identifier.chunk_size)")
	f.IntVar(&identifyReq.PageSize, "page-size", 0, "Orphan page size (default identifier.page_size)")
	f.BoolVar(&identifyReq.Fresh, "fresh", false, "Discard any saved checkpoint and start over")
	rootCmd.AddCommand(identifyCmd)
}
