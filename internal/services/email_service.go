package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/BradenHooton/accountd/internal/config"
	pkglogger "github.com/BradenHooton/accountd/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService defines the interface for sending account emails
type EmailService interface {
	SendVerificationEmail(ctx context.Context, email, username, token string, expiresAt time.Time) error
	SendPasswordResetEmail(ctx context.Context, email, username, token string, expiresAt time.Time) error
}

// SESSender is the subset of the SES client used here
type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	client  SESSender
	source  string
	baseURL string
	logger  *slog.Logger
}

// NewAWSSESEmailService loads the default AWS credential chain and creates an SES-backed mailer
func NewAWSSESEmailService(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (*AWSSESEmailService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewEmailServiceWithClient(ses.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewEmailServiceWithClient builds the mailer around an existing SES client
func NewEmailServiceWithClient(client SESSender, cfg config.EmailConfig, logger *slog.Logger) *AWSSESEmailService {
	source := cfg.FromAddress
	if cfg.FromName != "" {
		source = (&mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}).String()
	}

	return &AWSSESEmailService{
		client:  client,
		source:  source,
		baseURL: strings.TrimRight(cfg.AppBaseURL, "/"),
		logger:  logger,
	}
}

type emailContent struct {
	subject string
	heading string
	intro   string
	action  string
	ignore  string
}

var (
	verificationContent = emailContent{
		subject: "Verify your email address",
		heading: "Verify Your Email Address",
		intro:   "Thank you for creating an account. To complete your registration, please verify your email address by clicking the link below:",
		action:  "Verify Email Address",
		ignore:  "If you didn't sign up for this account, you can ignore this email. Your email address will not be verified.",
	}
	resetContent = emailContent{
		subject: "Reset your password",
		heading: "Reset Your Password",
		intro:   "We received a request to reset the password for your account. Click the link below to choose a new password:",
		action:  "Reset Password",
		ignore:  "If you didn't request a password reset, you can ignore this email. Your password will not change.",
	}
)

// SendVerificationEmail sends the link that confirms ownership of the address
func (s *AWSSESEmailService) SendVerificationEmail(ctx context.Context, email, username, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/verify/%s", s.baseURL, token)
	return s.send(ctx, "verification", email, username, link, expiresAt, verificationContent)
}

// SendPasswordResetEmail sends the single-use password reset link
func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, username, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/reset-password/%s", s.baseURL, token)
	return s.send(ctx, "password_reset", email, username, link, expiresAt, resetContent)
}

func (s *AWSSESEmailService) send(ctx context.Context, kind, email, username, link string, expiresAt time.Time, content emailContent) error {
	expiry := expiresAt.UTC().Format("Jan 2, 2006 15:04 MST")

	input := &ses.SendEmailInput{
		Source: aws.String(s.source),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(content.subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(renderHTML(content, username, link, expiry)),
					Charset: aws.String("UTF-8"),
				},
				Text: &types.Content{
					Data:    aws.String(renderText(content, username, link, expiry)),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("kind", kind),
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.logger.Info("email sent",
		slog.String("kind", kind),
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", messageID))

	return nil
}

func renderHTML(content emailContent, username, link, expiry string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>%s</h1></div>
        <p>Hi %s,</p>
        <p>%s</p>
        <p><a href="%s" class="button">%s</a></p>
        <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
        <p>This link expires on %s and can only be used once.</p>
        <p>%s</p>
        <div class="footer"><p>This is an automated message. Please do not reply to this email.</p></div>
    </div>
</body>
</html>
`, content.heading, html.EscapeString(username), content.intro, link, content.action, link, expiry, content.ignore)
}

func renderText(content emailContent, username, link, expiry string) string {
	return fmt.Sprintf(`%s

Hi %s,

%s

%s

This link expires on %s and can only be used once.

%s

This is an automated message. Please do not reply to this email.
`, content.heading, username, content.intro, link, expiry, content.ignore)
}
