package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/channel"
	"github.com/lalithlochan/crmflow/internal/circuitbreaker"
	"github.com/lalithlochan/crmflow/internal/config"
	"github.com/lalithlochan/crmflow/internal/jobs"
	"github.com/lalithlochan/crmflow/internal/notify"
	"github.com/lalithlochan/crmflow/internal/redis"
	"github.com/lalithlochan/crmflow/internal/rules"
	"github.com/lalithlochan/crmflow/internal/sqs"
)

func newRedisClient(cfg *config.Config, logger *zap.Logger) *redis.Client {
	return redis.New(redis.Config{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
}

func newBroker(ctx context.Context, cfg *config.Config, client *redis.Client, logger *zap.Logger) (jobs.Broker, error) {
	switch cfg.Broker.Backend {
	case "sqs":
		b, err := sqs.New(ctx, sqs.Config{
			Region:    cfg.Broker.SQSRegion,
			QueueURLs: cfg.Broker.SQSQueueURLs(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqs broker: %w", err)
		}
		return b, nil
	case "memory":
		return jobs.NewMemoryBroker(), nil
	default:
		return redis.NewBroker(client, redis.BrokerConfig{
			PollInterval: cfg.Worker.PollInterval,
			DedupeTTL:    24 * time.Hour,
		}, logger), nil
	}
}

// newAdapters builds the outbound channels the environment configures. Email
// falls back to the log adapter so development setups still see deliveries;
// other unconfigured channels are left out and reported as skipped.
// Each adapter's circuit breaker is added to breakers.
func newAdapters(ctx context.Context, cfg *config.Config, limiter *redis.RateLimiter, breakers *circuitbreaker.Registry, logger *zap.Logger) []notify.ChannelAdapter {
	var out []notify.ChannelAdapter

	if cfg.AWS.SESFromEmail != "" {
		email, err := channel.NewEmailAdapter(ctx, channel.EmailConfig{
			Region:    cfg.AWS.Region,
			FromEmail: cfg.AWS.SESFromEmail,
		}, logger)
		if err != nil {
			logger.Warn("SES unavailable, email goes to the log", zap.Error(err))
			out = append(out, channel.NewLogAdapter(notify.ChannelEmail, logger))
		} else {
			out = append(out, email)
		}
	} else {
		out = append(out, channel.NewLogAdapter(notify.ChannelEmail, logger))
	}

	if cfg.AWS.PushEnabled {
		push, err := channel.NewPushAdapter(ctx, cfg.AWS.SNSRegion, logger)
		if err != nil {
			logger.Warn("SNS unavailable, push notifications disabled", zap.Error(err))
		} else {
			out = append(out, push)
		}
	}

	if cfg.Channels.WhatsAppURL != "" {
		out = append(out, channel.NewWhatsAppAdapter(channel.WhatsAppConfig{
			URL:     cfg.Channels.WhatsAppURL,
			Token:   cfg.Channels.WhatsAppToken,
			Timeout: cfg.Channels.WhatsAppTimeout,
		}, logger))
	}

	if len(cfg.Channels.ChatURLs) > 0 {
		out = append(out, channel.NewChatAdapter(cfg.Channels.ChatURLs, logger))
	}

	wrapped := make([]notify.ChannelAdapter, 0, len(out))
	for _, a := range out {
		protected := circuitbreaker.Protect(a, circuitbreaker.DefaultConfig(""), logger)
		breakers.Add(protected.Breaker())

		var w notify.ChannelAdapter = protected
		if limiter != nil {
			w = channel.NewThrottled(w, limiter, logger)
		}
		wrapped = append(wrapped, w)
	}

	return wrapped
}

// seedRules refreshes the engine from its store and upserts the rules of
// path, if any.
func seedRules(ctx context.Context, engine *rules.Engine, path string, logger *zap.Logger) error {
	if err := engine.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	if path == "" {
		return nil
	}

	list, err := rules.LoadFile(path)
	if err != nil {
		return err
	}
	for _, r := range list {
		if _, err := engine.CreateOrUpdateRule(ctx, r); err != nil {
			return fmt.Errorf("seed rule %q: %w", r.ID, err)
		}
	}
	logger.Info("rules seeded", zap.String("file", path), zap.Int("count", len(list)))
	return nil
}
