package judge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/proctor/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

type sqsApi interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SqsJudge sends evaluation requests to the tester fleet through a
// request queue and waits for the verdict on a response queue.
type SqsJudge struct {
	client  sqsApi
	reqQ    string
	respQ   string
	timeout time.Duration

	// receiveRetry paces ReceiveResults while the response queue fails
	receiveRetry backoff.BackOff

	waiting *xsync.MapOf[uuid.UUID, chan Result]
}

func NewSqsJudge(client sqsApi, reqQueueUrl string, respQueueUrl string, timeout time.Duration) *SqsJudge {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 200 * time.Millisecond
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	return &SqsJudge{
		client:       client,
		reqQ:         reqQueueUrl,
		respQ:        respQueueUrl,
		timeout:      timeout,
		receiveRetry: retry,
		waiting:      xsync.NewMapOf[uuid.UUID, chan Result](),
	}
}

type sqsEvalReq struct {
	EvalUuid  string     `json:"eval_uuid"`
	ResSqsUrl string     `json:"res_sqs_url"`
	Language  string     `json:"language"`
	Code      string     `json:"code"`
	Tests     []TestCase `json:"tests"`
}

type sqsEvalRes struct {
	EvalUuid  string `json:"eval_uuid"`
	Status    string `json:"status"`
	Passed    int    `json:"passed"`
	Total     int    `json:"total"`
	TimeMs    int    `json:"time_ms"`
	MemoryKiB int    `json:"memory_kib"`
	Error     string `json:"error,omitempty"`
}

func (j *SqsJudge) Evaluate(ctx context.Context, req Request) (Result, error) {
	log := logger.FromContext(ctx)
	evalUuid := uuid.New()

	ch := make(chan Result, 1)
	j.waiting.Store(evalUuid, ch)
	defer j.waiting.Delete(evalUuid)

	body, err := encodeRequest(sqsEvalReq{
		EvalUuid:  evalUuid.String(),
		ResSqsUrl: j.respQ,
		Language:  req.Language,
		Code:      req.Source,
		Tests:     req.TestCases,
	})
	if err != nil {
		return Result{}, err
	}

	log.Debug("enqueueing evaluation", "eval_uuid", evalUuid, "tests", len(req.TestCases))
	_, err = j.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(j.reqQ),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to send message to eval queue: %w", err)
	}

	timer := time.NewTimer(j.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.Status == StatusInternalError {
			return res, fmt.Errorf("tester reported an internal error for %s", evalUuid)
		}
		return res, nil
	case <-timer.C:
		return Result{}, fmt.Errorf("evaluation %s timed out after %s", evalUuid, j.timeout)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// encodeRequest marshals to json, compresses with zstd and base64
// encodes the result so it fits an sqs message body.
func encodeRequest(req sqsEvalReq) (string, error) {
	jsonReq, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal eval request: %w", err)
	}

	zstdEncoder, err := zstd.NewWriter(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer zstdEncoder.Close()

	compressed := zstdEncoder.EncodeAll(jsonReq, make([]byte, 0, len(jsonReq)))
	return base64.StdEncoding.EncodeToString(compressed), nil
}

func decodeRequest(body string) (sqsEvalReq, error) {
	compressed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return sqsEvalReq{}, fmt.Errorf("failed to decode base64: %w", err)
	}
	zstdDecoder, err := zstd.NewReader(nil)
	if err != nil {
		return sqsEvalReq{}, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer zstdDecoder.Close()
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return sqsEvalReq{}, fmt.Errorf("failed to decompress: %w", err)
	}
	var req sqsEvalReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return sqsEvalReq{}, fmt.Errorf("failed to unmarshal eval request: %w", err)
	}
	return req, nil
}

// ReceiveResults consumes the response queue until ctx is cancelled and
// hands verdicts to the goroutines waiting in Evaluate.
func (j *SqsJudge) ReceiveResults(ctx context.Context, log *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		output, err := j.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(j.respQ),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     1,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			wait := j.receiveRetry.NextBackOff()
			log.Error("failed to receive messages", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		j.receiveRetry.Reset()

		for _, msg := range output.Messages {
			if msg.Body == nil || msg.ReceiptHandle == nil {
				log.Error("received message without body or receipt handle")
				continue
			}
			j.deliver(log, *msg.Body)

			_, err := j.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(j.respQ),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if err != nil {
				log.Error("failed to ack message", "error", err)
			}
		}
	}
}

func (j *SqsJudge) deliver(log *slog.Logger, body string) {
	var res sqsEvalRes
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		log.Error("failed to unmarshal message", "error", err)
		return
	}
	evalUuid, err := uuid.Parse(res.EvalUuid)
	if err != nil {
		log.Error("failed to parse eval_uuid", "error", err)
		return
	}
	ch, ok := j.waiting.Load(evalUuid)
	if !ok {
		// Evaluate gave up on it already
		log.Warn("verdict for unknown evaluation", "eval_uuid", evalUuid)
		return
	}
	if res.Error != "" {
		log.Warn("tester error", "eval_uuid", evalUuid, "error", res.Error)
	}
	select {
	case ch <- Result{
		Status:      Status(res.Status),
		PassedCount: res.Passed,
		TotalCount:  res.Total,
		TimeMs:      res.TimeMs,
		MemoryKiB:   res.MemoryKiB,
	}:
	default:
	}
}
