// Package app assembles the services from their production
// dependencies.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/proctor/appeal"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/attempt/attemptpgrepo"
	"github.com/programme-lv/proctor/attempt/attemptsrvc"
	"github.com/programme-lv/proctor/conf"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/evidence"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/judge"
	"github.com/programme-lv/proctor/leaderboard"
	"github.com/programme-lv/proctor/notify"
	"github.com/programme-lv/proctor/registration"
)

type App struct {
	Pool       *pgxpool.Pool
	Exams      *exam.DirProvider
	Judge      *judge.SqsJudge
	Bus        *notify.Bus
	Dispatcher *notify.Dispatcher

	Attempts    *attemptsrvc.AttemptSrvc
	Leaderboard *leaderboard.LeaderboardSrvc
	Appeals     *appeal.AppealSrvc
}

func LoadAwsConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), 5)
		}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	return cfg, nil
}

func New(ctx context.Context, cfg conf.Config) (*App, error) {
	awsCfg, err := LoadAwsConfig(ctx, cfg.AwsRegion)
	if err != nil {
		return nil, err
	}

	connStr, err := conf.PgConnStr(ctx, awsCfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pg: %w", err)
	}

	sqsClient := sqs.NewFromConfig(awsCfg)
	a := &App{
		Pool:  pool,
		Exams: exam.NewDirProvider(cfg.ExamDir),
		Judge: judge.NewSqsJudge(sqsClient, cfg.JudgeReqQueueUrl, cfg.JudgeRespQueueUrl, cfg.JudgeTimeout),
		Bus:   notify.NewBus(),
	}

	notifiers := []notify.Notifier{a.Bus}
	if cfg.EventsQueueUrl != "" {
		notifiers = append(notifiers, notify.NewSqsPublisher(sqsClient, cfg.EventsQueueUrl))
	}
	a.Dispatcher = notify.NewDispatcher(10*time.Second, notifiers...)

	exams := exam.NewCachedProvider(a.Exams, cfg.ExamCacheTTL)
	attemptRepo := attemptpgrepo.NewPgAttemptRepo(pool)

	a.Leaderboard = leaderboard.NewLeaderboardSrvc(leaderboard.Deps{
		Repo:         leaderboard.NewPgRepo(pool),
		ListAttempts: attemptRepo.ListExamAttempts,
		SetRanks:     attemptRepo.SetRanks,
		Publish:      a.Dispatcher.Publish,
		CacheTTL:     cfg.LeaderboardCacheTTL,
	})
	recalc := a.Leaderboard.RecalculateFor

	ddb := dynamodb.NewFromConfig(awsCfg)
	a.Attempts = attemptsrvc.NewAttemptSrvc(attemptsrvc.Deps{
		Repo:              attemptRepo,
		Exams:             exams,
		Registrations:     registration.NewPgRegistry(pool),
		Devices:           device.NewRegistry(device.NewDynamoDbDeviceTable(ddb, cfg.DeviceTable)),
		Locks:             device.NewPgLockRepo(pool),
		Judge:             a.Judge,
		Publish:           a.Dispatcher.Publish,
		RecalcLeaderboard: recalc,
	})

	a.Appeals = appeal.NewAppealSrvc(appeal.Deps{
		Repo:          appeal.NewPgRepo(pool),
		Archive:       evidence.NewArchive(evidence.NewS3Bucket(awsCfg, cfg.EvidenceBucket)),
		GetAttempt:    attemptRepo.GetAttempt,
		GetViolation:  attemptRepo.GetViolation,
		SaveViolation: attemptRepo.SaveViolation,
		GetExam:       exams.GetExam,
		Reinstate: func(ctx context.Context, id uuid.UUID) (attempt.Attempt, error) {
			return a.Attempts.Reinstate.Handle(ctx, attemptsrvc.ReinstateParams{AttemptUUID: id})
		},
		RecalcLeaderboard: recalc,
		Publish:           a.Dispatcher.Publish,
	})

	return a, nil
}

// Close waits for in-flight notifications and releases the pool.
func (a *App) Close() {
	a.Dispatcher.Wait()
	a.Pool.Close()
}
