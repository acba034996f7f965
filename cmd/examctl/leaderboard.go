package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/programme-lv/proctor/app"
	"github.com/programme-lv/proctor/leaderboard"
	"github.com/programme-lv/proctor/scoring"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newLeaderboardCmd() *cobra.Command {
	var examID string

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show or recalculate an exam leaderboard",
	}
	cmd.PersistentFlags().StringVarP(&examID, "exam", "e", "", "exam id (required)")
	cmd.MarkPersistentFlagRequired("exam")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current standings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				entries, err := a.Leaderboard.GetBoard.Handle(cmd.Context(), leaderboard.GetBoardParams{ExamID: examID})
				if err != nil {
					return err
				}
				renderBoard(os.Stdout, examID, entries)
				return nil
			})
		},
	}

	recalc := &cobra.Command{
		Use:   "recalc",
		Short: "Rebuild the standings from graded attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				entries, err := a.Leaderboard.Recalculate.Handle(cmd.Context(), leaderboard.RecalculateParams{ExamID: examID})
				if err != nil {
					return err
				}
				log.Info().Str("exam", examID).Int("entries", len(entries)).Msg("leaderboard recalculated")
				renderBoard(os.Stdout, examID, entries)
				return nil
			})
		},
	}

	cmd.AddCommand(show, recalc)
	return cmd
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3498db"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f8c8d"))
	dqStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#e74c3c"))
)

func renderBoard(w io.Writer, examID string, entries []leaderboard.Entry) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("RANK", "USER", "SCORE", "PERCENT", "TIME", "PERCENTILE", "STATUS")

	for _, e := range entries {
		row := boardRow(e)
		if e.Disqualified {
			row[len(row)-1] = dqStyle.Render(row[len(row)-1])
		}
		t.Row(row...)
	}
	fmt.Fprintln(w, titleStyle.Render("Leaderboard "+examID))
	fmt.Fprintln(w, t.Render())
}

func boardRow(e leaderboard.Entry) []string {
	rank, percentile, spent := "-", "-", "-"
	if e.Rank != nil {
		rank = strconv.Itoa(*e.Rank)
	}
	if e.Percentile != nil {
		percentile = scoring.Round2(*e.Percentile).String()
	}
	if e.TimeSpentSec != nil {
		spent = fmt.Sprintf("%d:%02d", *e.TimeSpentSec/60, *e.TimeSpentSec%60)
	}
	status := string(e.Status)
	if e.Disqualified {
		status = "disqualified"
	}
	return []string{
		rank,
		e.UserUUID.String()[:8],
		scoring.Round2(e.WeightedScore).String(),
		scoring.Round2(e.ScorePercent).String(),
		spent,
		percentile,
		status,
	}
}
