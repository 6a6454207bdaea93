// Package sqs implements the job broker on Amazon SQS, one SQS queue per job
// queue.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/jobs"
)

// maxDelay is the longest delay SQS accepts on a message.
const maxDelay = 900 * time.Second

// API is the subset of the SQS client the broker uses.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, opts ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Config holds SQS configuration.
type Config struct {
	Region    string
	QueueURLs map[jobs.Queue]string
	// WaitTime is the long-poll duration of one receive call.
	WaitTime time.Duration
}

// Broker is a jobs.Broker on SQS. Messages are deleted as soon as they are
// received, so delivery is at most once like the other brokers.
type Broker struct {
	client   API
	urls     map[jobs.Queue]string
	waitTime int32
	logger   *zap.Logger
	now      func() time.Time
}

var _ jobs.Broker = (*Broker)(nil)

// New loads the default AWS configuration and creates a broker.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Broker, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(sqs.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewWithClient creates a broker around an existing client.
func NewWithClient(client API, cfg Config, logger *zap.Logger) *Broker {
	wait := cfg.WaitTime
	if wait <= 0 {
		wait = 5 * time.Second
	}
	if wait > 20*time.Second {
		wait = 20 * time.Second
	}

	logger.Info("sqs broker initialized", zap.Int("queues", len(cfg.QueueURLs)))

	return &Broker{
		client:   client,
		urls:     cfg.QueueURLs,
		waitTime: int32(wait / time.Second),
		logger:   logger,
		now:      time.Now,
	}
}

// Ping checks that every configured queue is reachable.
func (b *Broker) Ping(ctx context.Context) error {
	if len(b.urls) == 0 {
		return fmt.Errorf("no sqs queue urls configured")
	}
	for q, url := range b.urls {
		_, err := b.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
			QueueUrl:       aws.String(url),
			AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
		})
		if err != nil {
			return fmt.Errorf("sqs queue %s unreachable: %w", q, err)
		}
	}
	return nil
}

// Enqueue sends job. Delays past the SQS maximum are carried in the job's
// RunAt and honoured by re-sending on receipt.
func (b *Broker) Enqueue(ctx context.Context, job *jobs.Job) error {
	url, err := b.queueURL(job.Queue)
	if err != nil {
		return err
	}

	body, err := job.Encode()
	if err != nil {
		return err
	}

	out, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(url),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySeconds(job.RunAt.Sub(b.now())),
	})
	if err != nil {
		b.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.String("job_id", job.ID),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	b.logger.Debug("job sent to sqs", zap.String("job_id", job.ID), zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

// Dequeue long-polls queue until an eligible job arrives or ctx is done.
func (b *Broker) Dequeue(ctx context.Context, queue jobs.Queue) (*jobs.Job, error) {
	url, err := b.queueURL(queue)
	if err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(url),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     b.waitTime,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("sqs receive failed: %w", err)
		}
		if len(out.Messages) == 0 {
			continue
		}

		msg := out.Messages[0]
		if _, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(url),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			return nil, fmt.Errorf("sqs delete failed: %w", err)
		}

		job, err := jobs.DecodeJob([]byte(aws.ToString(msg.Body)))
		if err != nil {
			b.logger.Error("dropping undecodable message",
				zap.String("message_id", aws.ToString(msg.MessageId)),
				zap.Error(err),
			)
			continue
		}

		if job.RunAt.After(b.now()) {
			if err := b.Enqueue(ctx, job); err != nil {
				return nil, err
			}
			continue
		}
		return job, nil
	}
}

// Close is a no-op; AWS SDK v2 clients don't require explicit Close().
func (b *Broker) Close() error {
	return nil
}

func (b *Broker) queueURL(q jobs.Queue) (string, error) {
	url, ok := b.urls[q]
	if !ok {
		return "", fmt.Errorf("no sqs queue url for queue %q", q)
	}
	return url, nil
}

func delaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	if d > maxDelay {
		d = maxDelay
	}
	// round up so a job never becomes visible early
	return int32((d + time.Second - 1) / time.Second)
}
