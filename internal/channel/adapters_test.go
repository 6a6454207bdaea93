package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/notify"
	"github.com/lalithlochan/crmflow/internal/redis"
)

var (
	_ notify.ChannelAdapter = (*EmailAdapter)(nil)
	_ notify.ChannelAdapter = (*PushAdapter)(nil)
	_ notify.ChannelAdapter = (*WhatsAppAdapter)(nil)
	_ notify.ChannelAdapter = (*ChatAdapter)(nil)
	_ notify.ChannelAdapter = (*LogAdapter)(nil)
	_ notify.ChannelAdapter = (*Throttled)(nil)
)

func testMessage() notify.Message {
	return notify.Message{
		Type:  "survey",
		Title: "How was your purchase?",
		Body:  "Tell us how it went",
		Link:  "https://s.example/9",
	}
}

type fakeSES struct {
	in  *ses.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestEmailAdapter_Deliver(t *testing.T) {
	client := &fakeSES{}
	a := NewEmailAdapterWithClient(client, "crm@example.com", zap.NewNop())

	err := a.Deliver(context.Background(), notify.Recipient{ID: "c1", Contact: "carl@example.com"}, testMessage())
	require.NoError(t, err)

	assert.Equal(t, "crm@example.com", aws.ToString(client.in.Source))
	assert.Equal(t, []string{"carl@example.com"}, client.in.Destination.ToAddresses)
	assert.Equal(t, "How was your purchase?", aws.ToString(client.in.Message.Subject.Data))
	assert.Equal(t, "Tell us how it went\n\nhttps://s.example/9", aws.ToString(client.in.Message.Body.Text.Data))
	assert.Equal(t, notify.ContactEmail, a.Requires())
}

func TestEmailAdapter_Errors(t *testing.T) {
	to := notify.Recipient{ID: "c1", Contact: "carl@example.com"}

	a := NewEmailAdapterWithClient(&fakeSES{}, "", zap.NewNop())
	assert.ErrorContains(t, a.Deliver(context.Background(), to, testMessage()), "not configured")

	a = NewEmailAdapterWithClient(&fakeSES{}, "crm@example.com", zap.NewNop())
	assert.Error(t, a.Deliver(context.Background(), to, notify.Message{Title: "only title"}))

	a = NewEmailAdapterWithClient(&fakeSES{err: errors.New("throttling")}, "crm@example.com", zap.NewNop())
	assert.ErrorContains(t, a.Deliver(context.Background(), to, testMessage()), "ses send failed")
}

type fakeSNS struct {
	in  *sns.PublishInput
	err error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("p-1")}, nil
}

func TestPushAdapter_Deliver(t *testing.T) {
	client := &fakeSNS{}
	a := NewPushAdapterWithClient(client, zap.NewNop())
	arn := "arn:aws:sns:us-east-1:123:endpoint/GCM/crm/abc"

	require.NoError(t, a.Deliver(context.Background(), notify.Recipient{ID: "u1", Contact: arn}, testMessage()))

	assert.Equal(t, arn, aws.ToString(client.in.TargetArn))
	assert.Equal(t, "json", aws.ToString(client.in.MessageStructure))

	var structured map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.in.Message)), &structured))
	assert.Equal(t, "Tell us how it went", structured["default"])

	var gcm struct {
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(structured["GCM"]), &gcm))
	assert.Equal(t, "How was your purchase?", gcm.Notification["title"])
	assert.Equal(t, "https://s.example/9", gcm.Data["link"])
	assert.Contains(t, structured["APNS"], `"aps"`)

	client.err = errors.New("endpoint disabled")
	assert.ErrorContains(t, a.Deliver(context.Background(), notify.Recipient{Contact: arn}, testMessage()), "sns publish failed")
}

func TestWhatsAppAdapter_Deliver(t *testing.T) {
	var got whatsAppMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer server.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{URL: server.URL, Token: "secret", Timeout: 5 * time.Second}, zap.NewNop())
	err := a.Deliver(context.Background(), notify.Recipient{ID: "c1", Contact: "+15550001"}, testMessage())
	require.NoError(t, err)

	assert.Equal(t, "+15550001", got.To)
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, "*How was your purchase?*\nTell us how it went\nhttps://s.example/9", got.Text.Body)
	assert.True(t, got.Text.PreviewURL)
}

func TestWhatsAppAdapter_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{URL: server.URL}, zap.NewNop())
	err := a.Deliver(context.Background(), notify.Recipient{Contact: "+15550001"}, testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "upstream down")

	a = NewWhatsAppAdapter(WhatsAppConfig{}, zap.NewNop())
	assert.ErrorContains(t, a.Deliver(context.Background(), notify.Recipient{}, testMessage()), "not configured")
}

func TestChatAdapter_Deliver(t *testing.T) {
	var sent []string
	send := func(url, message string) error {
		sent = append(sent, url+"|"+message)
		if url == "discord://bad" {
			return errors.New("rejected")
		}
		return nil
	}

	a := NewChatAdapterWithSender([]string{"slack://token@channel", "discord://bad"}, send, zap.NewNop())
	err := a.Deliver(context.Background(), notify.Recipient{}, testMessage())

	require.Len(t, sent, 2)
	assert.Equal(t, "slack://token@channel|How was your purchase?\nTell us how it went\nhttps://s.example/9", sent[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat url 1")
	assert.Equal(t, notify.ContactNone, a.Requires())

	empty := NewChatAdapterWithSender(nil, send, zap.NewNop())
	assert.Error(t, empty.Deliver(context.Background(), notify.Recipient{}, testMessage()))
}

func TestLogAdapter(t *testing.T) {
	a := NewLogAdapter(notify.ChannelWhatsApp, zap.NewNop())
	assert.Equal(t, notify.ChannelWhatsApp, a.Channel())
	assert.NoError(t, a.Deliver(context.Background(), notify.Recipient{ID: "u1"}, testMessage()))
}

type countingAdapter struct {
	calls int
}

func (c *countingAdapter) Channel() notify.Channel      { return notify.ChannelEmail }
func (c *countingAdapter) Requires() notify.ContactKind { return notify.ContactEmail }
func (c *countingAdapter) Deliver(context.Context, notify.Recipient, notify.Message) error {
	c.calls++
	return nil
}

func TestThrottled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.New(redis.Config{Addr: mr.Addr()}, zap.NewNop())
	t.Cleanup(func() { _ = client.Close() })

	limiter := redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{Limit: 2, Window: time.Minute})
	next := &countingAdapter{}
	a := NewThrottled(next, limiter, zap.NewNop())
	ctx := context.Background()
	to := notify.Recipient{ID: "c1", Type: notify.RecipientCustomer, Contact: "carl@example.com"}

	require.NoError(t, a.Deliver(ctx, to, testMessage()))
	require.NoError(t, a.Deliver(ctx, to, testMessage()))
	err := a.Deliver(ctx, to, testMessage())
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Equal(t, 2, next.calls)

	other := notify.Recipient{ID: "c2", Type: notify.RecipientCustomer}
	assert.NoError(t, a.Deliver(ctx, other, testMessage()))
	assert.Equal(t, notify.ChannelEmail, a.Channel())
	assert.Equal(t, notify.ContactEmail, a.Requires())
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (*redis.RateLimitResult, error) {
	return nil, errors.New("connection refused")
}

func TestThrottled_LimiterFailureDelivers(t *testing.T) {
	next := &countingAdapter{}
	a := NewThrottled(next, brokenLimiter{}, zap.NewNop())

	require.NoError(t, a.Deliver(context.Background(), notify.Recipient{ID: "c1"}, testMessage()))
	assert.Equal(t, 1, next.calls)
}
