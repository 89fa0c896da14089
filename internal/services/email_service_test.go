package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/accountd/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func testEmailConfig() config.EmailConfig {
	return config.EmailConfig{
		AWSRegion:   "us-east-1",
		FromAddress: "no-reply@example.com",
		FromName:    "Weg Blog",
		AppBaseURL:  "https://blog.example.com/",
	}
}

func TestEmailService_SendVerificationEmail(t *testing.T) {
	client := &fakeSES{}
	svc := NewEmailServiceWithClient(client, testEmailConfig(), slog.Default())

	err := svc.SendVerificationEmail(context.Background(), "user@example.com", "<alice>", "abc123", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, `"Weg Blog" <no-reply@example.com>`, *client.input.Source)
	assert.Equal(t, []string{"user@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Verify your email address", *client.input.Message.Subject.Data)

	htmlBody := *client.input.Message.Body.Html.Data
	textBody := *client.input.Message.Body.Text.Data
	assert.Contains(t, htmlBody, "https://blog.example.com/verify/abc123")
	assert.Contains(t, textBody, "https://blog.example.com/verify/abc123")
	assert.Contains(t, htmlBody, "&lt;alice&gt;")
	assert.NotContains(t, htmlBody, "<alice>")
}

func TestEmailService_SendPasswordResetEmail(t *testing.T) {
	client := &fakeSES{}
	svc := NewEmailServiceWithClient(client, testEmailConfig(), slog.Default())

	err := svc.SendPasswordResetEmail(context.Background(), "user@example.com", "alice", "def456", time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "Reset your password", *client.input.Message.Subject.Data)
	assert.Contains(t, *client.input.Message.Body.Text.Data, "https://blog.example.com/reset-password/def456")
}

func TestEmailService_SendFailure(t *testing.T) {
	client := &fakeSES{err: errors.New("MessageRejected")}
	svc := NewEmailServiceWithClient(client, testEmailConfig(), slog.Default())

	err := svc.SendVerificationEmail(context.Background(), "user@example.com", "alice", "abc123", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

func TestEmailService_FromWithoutName(t *testing.T) {
	client := &fakeSES{}
	cfg := testEmailConfig()
	cfg.FromName = ""
	svc := NewEmailServiceWithClient(client, cfg, slog.Default())

	require.NoError(t, svc.SendVerificationEmail(context.Background(), "user@example.com", "alice", "t", time.Now()))
	assert.Equal(t, "no-reply@example.com", *client.input.Source)
}
