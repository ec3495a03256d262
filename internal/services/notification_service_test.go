package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/mail"
)

type captureMailer struct {
	messages  []mail.Message
	sendErr   error
	verifyErr error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) Verify(context.Context) error {
	return m.verifyErr
}

func newNotificationServiceForTest(mailer mail.Mailer) *NotificationService {
	clock := newTestClock()
	return NewNotificationService(mailer, NotificationConfig{
		AppName: "STO Manager",
		BaseURL: "https://sto.example.com/",
		SMTP:    mail.SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, From: "noreply@example.com"},
		Clock:   clock.Now,
	})
}

func TestNotificationSendOTP(t *testing.T) {
	mailer := &captureMailer{}
	svc := newNotificationServiceForTest(mailer)

	result := svc.SendOTP(context.Background(), "user@example.com", "Jane", "123456", models.OTPPurposeSignup)
	require.True(t, result.Success)
	require.Regexp(t, `^<[0-9a-f-]{36}@smtp\.example\.com>$`, result.MessageID)

	require.Len(t, mailer.messages, 1)
	msg := mailer.messages[0]
	require.Equal(t, []string{"user@example.com"}, msg.To)
	require.Equal(t, "Your STO Manager Verification Code - 123456", msg.Subject)
	require.Contains(t, msg.Body, "Hello Jane")
	require.Contains(t, msg.Body, "expire in 10 minutes")
	require.Contains(t, msg.Body, "Account Verification")
	require.Contains(t, msg.HTMLBody, "123456")
}

func TestNotificationApprovalAndWelcomeLinks(t *testing.T) {
	mailer := &captureMailer{}
	svc := newNotificationServiceForTest(mailer)
	ctx := context.Background()

	result := svc.SendApprovalRequest(ctx, "boss@example.com", "new@example.com", "New <User>", "https://sto.example.com/api/auth/approve?token=abc")
	require.True(t, result.Success)
	approval := mailer.messages[0]
	require.Equal(t, "STO Manager - New User Approval Required: New <User>", approval.Subject)
	require.Contains(t, approval.Body, "https://sto.example.com/users/pending")
	require.Contains(t, approval.HTMLBody, "New &lt;User&gt;")
	require.Contains(t, approval.HTMLBody, "token=abc")

	result = svc.SendWelcome(ctx, "new@example.com", "")
	require.True(t, result.Success)
	welcome := mailer.messages[1]
	require.Equal(t, "Welcome to STO Manager - Your Account is Now Active!", welcome.Subject)
	require.Contains(t, welcome.Body, "Hello new@example.com")
	require.Contains(t, welcome.Body, "https://sto.example.com/auth/signin")
}

func TestNotificationSendFailureIsReported(t *testing.T) {
	svc := newNotificationServiceForTest(&captureMailer{sendErr: errBoom})

	result := svc.SendTest(context.Background(), "ops@example.com")
	require.False(t, result.Success)
	require.Equal(t, "boom", result.Error)

	result = svc.SendTest(context.Background(), " ")
	require.False(t, result.Success)
	require.Contains(t, result.Error, "recipient")
}

func TestNotificationHealth(t *testing.T) {
	healthy := newNotificationServiceForTest(&captureMailer{})
	health := healthy.CheckHealth(context.Background())
	require.True(t, health.Healthy)
	require.Equal(t, "smtp.example.com", health.Config["host"])

	broken := newNotificationServiceForTest(&captureMailer{verifyErr: errBoom})
	health = broken.CheckHealth(context.Background())
	require.False(t, health.Healthy)
	require.Equal(t, "boom", health.Error)
}

func TestNotificationDisabledLogsOnly(t *testing.T) {
	mailer := &captureMailer{}
	svc := NewNotificationService(mailer, NotificationConfig{SMTP: mail.SMTPSettings{Enabled: false}})

	result := svc.SendTest(context.Background(), "ops@example.com")
	require.True(t, result.Success)
	require.True(t, strings.HasSuffix(result.MessageID, "@stomanager.local>"))
	require.Empty(t, mailer.messages)

	health := svc.CheckHealth(context.Background())
	require.False(t, health.Healthy)
	require.Equal(t, "SMTP disabled", health.Error)
}

func TestNotificationTestEmailTimestamp(t *testing.T) {
	mailer := &captureMailer{}
	svc := newNotificationServiceForTest(mailer)

	require.True(t, svc.SendTest(context.Background(), "ops@example.com").Success)
	want := newTestClock().Now().Format(time.RFC1123)
	require.Contains(t, mailer.messages[0].Body, want)
	require.Equal(t, "STO Manager - Email Configuration Test", mailer.messages[0].Subject)
}
