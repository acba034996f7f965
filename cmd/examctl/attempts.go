package main

import (
	"github.com/programme-lv/proctor/app"
	"github.com/programme-lv/proctor/attempt/attemptsrvc"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newAttemptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Supervise running attempts",
	}

	var examID string
	var dryRun bool
	expire := &cobra.Command{
		Use:   "expire",
		Short: "Force submission of attempts past their deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				ctx := cmd.Context()
				expired, err := a.Attempts.ListExpired.Handle(ctx, attemptsrvc.ListExpiredParams{ExamID: examID})
				if err != nil {
					return err
				}
				log.Info().Int("count", len(expired)).Bool("dry_run", dryRun).Msg("found expired attempts")
				if dryRun {
					for _, att := range expired {
						log.Info().Str("attempt", att.UUID.String()).Str("exam", att.ExamID).Msg("would expire")
					}
					return nil
				}

				failed := 0
				for _, att := range expired {
					res, err := a.Attempts.ExpireAttempt.Handle(ctx, attemptsrvc.ExpireAttemptParams{AttemptUUID: att.UUID})
					if err != nil {
						failed++
						log.Error().Err(err).Str("attempt", att.UUID.String()).Msg("failed to expire attempt")
						continue
					}
					log.Info().Str("attempt", att.UUID.String()).Str("status", string(res.Status)).Msg("expired")
				}
				if failed > 0 {
					log.Warn().Int("failed", failed).Msg("some attempts were not expired")
				}
				return nil
			})
		},
	}
	expire.Flags().StringVarP(&examID, "exam", "e", "", "limit to one exam; all exams when empty")
	expire.Flags().BoolVar(&dryRun, "dry-run", false, "list the attempts without expiring them")

	cmd.AddCommand(expire)
	return cmd
}
