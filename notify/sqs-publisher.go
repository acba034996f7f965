package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SqsPublisher forwards events to the queue consumed by the
// notification delivery service.
type SqsPublisher struct {
	client   *sqs.Client
	queueUrl string
}

func NewSqsPublisher(client *sqs.Client, queueUrl string) *SqsPublisher {
	return &SqsPublisher{client: client, queueUrl: queueUrl}
}

type envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       Event     `json:"data"`
}

func (p *SqsPublisher) Notify(ctx context.Context, e Event) error {
	body, err := json.Marshal(envelope{Type: e.Type(), OccurredAt: time.Now(), Data: e})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Type(), err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueUrl),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(e.Type())},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send %s event: %w", e.Type(), err)
	}
	return nil
}
