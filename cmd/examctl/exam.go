package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/programme-lv/proctor/exam"
	"github.com/spf13/cobra"
)

func newExamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam",
		Short: "Work with exam definition files",
	}

	check := &cobra.Command{
		Use:   "check <dir>",
		Short: "Parse and validate every exam definition in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bad, err := checkExamDir(cmd.Context(), os.Stdout, args[0])
			if err != nil {
				return err
			}
			if bad > 0 {
				return fmt.Errorf("%d invalid exam definition(s)", bad)
			}
			return nil
		},
	}

	cmd.AddCommand(check)
	return cmd
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ecc71"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e74c3c"))
)

// checkExamDir reports each definition and returns how many failed.
func checkExamDir(ctx context.Context, w io.Writer, dir string) (int, error) {
	p := exam.NewDirProvider(dir)
	ids, err := p.ListExamIDs()
	if err != nil {
		return 0, err
	}
	bad := 0
	for _, id := range ids {
		e, err := p.GetExam(ctx, id)
		if err != nil {
			bad++
			fmt.Fprintf(w, "%s %s: %v\n", failStyle.Render("FAIL"), id, err)
			continue
		}
		fmt.Fprintf(w, "%s %s: %d sections, %d min\n", okStyle.Render("OK"), id, len(e.Sections), e.TotalDurationMin)
	}
	return bad, nil
}
