package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/hostel/internal/scheduler"
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <student-a> <student-b>",
		Short: "Show the compatibility of two students",
		Long: `Score two registered students against each other and show how much
each preference attribute contributed. Attributes either student left
blank are skipped and do not count against the pair.`,
		Example: `  hostel score s-1001 s-1002
  hostel score s-1001 s-1002 -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := apiClient.Compatibility(args[0], args[1])
			if err != nil {
				return err
			}
			if outputFormat == "json" || outputFormat == "yaml" {
				return printOutput(report, nil, nil)
			}

			color.New(color.Bold).Fprintf(stdout, "%s <-> %s: ", report.StudentA, report.StudentB)
			fmt.Fprintln(stdout, formatScore(report.Score, scheduler.DefaultMinScore))
			fmt.Fprintln(stdout)

			rows := make([][]string, 0, len(report.Attributes))
			for _, a := range report.Attributes {
				similarity := strconv.FormatFloat(a.Similarity, 'f', 2, 64)
				if a.Skipped {
					similarity = color.HiBlackString("skipped")
				}
				rows = append(rows, []string{a.Attribute, strconv.FormatFloat(a.Weight, 'f', 2, 64), similarity})
			}
			printTable([]string{"ATTRIBUTE", "WEIGHT", "SIMILARITY"}, rows)
			return nil
		},
	}

	return cmd
}
