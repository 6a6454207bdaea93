package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/notify"
)

// SNSAPI is the part of the SNS client the push adapter uses.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// PushAdapter publishes mobile push notifications to SNS platform endpoints.
type PushAdapter struct {
	client SNSAPI
	logger *zap.Logger
}

func NewPushAdapter(ctx context.Context, region string, logger *zap.Logger) (*PushAdapter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}
	return NewPushAdapterWithClient(sns.NewFromConfig(awsCfg), logger), nil
}

func NewPushAdapterWithClient(client SNSAPI, logger *zap.Logger) *PushAdapter {
	return &PushAdapter{client: client, logger: logger}
}

func (a *PushAdapter) Channel() notify.Channel      { return notify.ChannelPush }
func (a *PushAdapter) Requires() notify.ContactKind { return notify.ContactPushEndpoint }

// Deliver publishes msg to the endpoint ARN in to.Contact. The body is the
// default text; GCM and APNS endpoints get a platform payload.
func (a *PushAdapter) Deliver(ctx context.Context, to notify.Recipient, msg notify.Message) error {
	message, err := pushMessage(msg)
	if err != nil {
		return err
	}

	result, err := a.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(to.Contact),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	a.logger.Info("push sent via SNS",
		zap.String("recipient_id", to.ID),
		zap.String("notification_type", msg.Type),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

func pushMessage(msg notify.Message) (string, error) {
	data := map[string]string{"type": msg.Type}
	if msg.Link != "" {
		data["link"] = msg.Link
	}

	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": msg.Title, "body": msg.Body},
		"data":         data,
	})
	if err != nil {
		return "", fmt.Errorf("encode gcm payload: %w", err)
	}
	apns, err := json.Marshal(map[string]any{
		"aps":  map[string]any{"alert": map[string]string{"title": msg.Title, "body": msg.Body}},
		"data": data,
	})
	if err != nil {
		return "", fmt.Errorf("encode apns payload: %w", err)
	}

	out, err := json.Marshal(map[string]string{
		"default": msg.Body,
		"GCM":     string(gcm),
		"APNS":    string(apns),
	})
	if err != nil {
		return "", fmt.Errorf("encode push message: %w", err)
	}
	return string(out), nil
}
