// Package channel holds the notify.ChannelAdapter implementations for the
// external delivery channels.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/notify"
)

// SESAPI is the part of the SES client the email adapter uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type EmailConfig struct {
	Region    string
	FromEmail string
}

// EmailAdapter sends email through AWS SES.
type EmailAdapter struct {
	client SESAPI
	from   string
	logger *zap.Logger
}

func NewEmailAdapter(ctx context.Context, cfg EmailConfig, logger *zap.Logger) (*EmailAdapter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SES: %w", err)
	}
	return NewEmailAdapterWithClient(ses.NewFromConfig(awsCfg), cfg.FromEmail, logger), nil
}

func NewEmailAdapterWithClient(client SESAPI, from string, logger *zap.Logger) *EmailAdapter {
	return &EmailAdapter{client: client, from: from, logger: logger}
}

func (a *EmailAdapter) Channel() notify.Channel      { return notify.ChannelEmail }
func (a *EmailAdapter) Requires() notify.ContactKind { return notify.ContactEmail }

// Deliver sends msg to the recipient's address. The link, if any, is
// appended to the body.
func (a *EmailAdapter) Deliver(ctx context.Context, to notify.Recipient, msg notify.Message) error {
	if a.from == "" {
		return errors.New("ses sender address not configured")
	}
	if msg.Title == "" || msg.Body == "" {
		return errors.New("email needs a subject and a body")
	}

	body := msg.Body
	if msg.Link != "" {
		body += "\n\n" + msg.Link
	}

	input := &ses.SendEmailInput{
		Source: aws.String(a.from),
		Destination: &types.Destination{
			ToAddresses: []string{to.Contact},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Title),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := a.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	a.logger.Info("email sent via SES",
		zap.String("recipient_id", to.ID),
		zap.String("notification_type", msg.Type),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}
