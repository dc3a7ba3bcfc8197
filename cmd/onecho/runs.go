package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	runsCmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recorded pipeline runs",
		Long: `List recent pipeline runs from the run registry, or show the per-file
results of one run when a run id is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRuns,
	}

	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list")

	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close() //nolint:errcheck // read-only query

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush() //nolint:errcheck // stdout

	if len(args) == 1 {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		files, err := reg.RunFiles(ctx, runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "FILE\tLAYOUT\tSTATUS\tRECORDS\tMALFORMED\tREASON")
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				f.InputFile, f.LayoutName, f.Status, f.Records, f.Malformed, f.Reason)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := reg.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tCOMMAND\tSTATUS\tSTARTED\tFILES\tERRORS\tWARNINGS")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Command, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Files, r.Errors, r.Warnings)
	}
	return nil
}
