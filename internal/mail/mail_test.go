package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
)

type recordingTransport struct {
	sent []*gomail.Msg
	err  error
}

func (r *recordingTransport) DialAndSendWithContext(_ context.Context, messages ...*gomail.Msg) error {
	r.sent = append(r.sent, messages...)
	return r.err
}

func testDispatcher(t *recordingTransport) *Dispatcher {
	return newDispatcher(t, SMTPConfig{From: "noreply@zhsystem.dev"}, "https://app.zhsystem.dev/")
}

func TestDispatcher_SendVerification(t *testing.T) {
	tr := &recordingTransport{}

	err := testDispatcher(tr).SendVerification(context.Background(), "a@b.com", "alice", "tok123")
	require.NoError(t, err)
	require.Len(t, tr.sent, 1)

	msg := tr.sent[0]
	assert.Equal(t, []string{SubjectVerifyEmail}, msg.GetGenHeader(gomail.HeaderSubject))
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.com"}, rcpts)
}

func TestRender_VerificationBody(t *testing.T) {
	d := testDispatcher(&recordingTransport{})

	body, err := render(verifyTemplate, "alice", d.link("/auth/verify-email", "tok+/="))
	require.NoError(t, err)
	assert.Contains(t, body, "Welcome to ZHSystem, alice!")
	assert.Contains(t, body, "Verify Email")
	assert.Contains(t, body, "https://app.zhsystem.dev/auth/verify-email?token=tok%2B%2F%3D")
}

func TestDispatcher_SendPasswordReset(t *testing.T) {
	tr := &recordingTransport{}

	err := testDispatcher(tr).SendPasswordReset(context.Background(), "a@b.com", "alice", "tok123")
	require.NoError(t, err)
	require.Len(t, tr.sent, 1)

	assert.Equal(t, []string{SubjectResetPassword}, tr.sent[0].GetGenHeader(gomail.HeaderSubject))

	body, err := render(resetTemplate, "alice", "https://x/auth/reset-password?token=t")
	require.NoError(t, err)
	assert.Contains(t, body, "Reset Password")
}

func TestDispatcher_EscapesName(t *testing.T) {
	body, err := render(verifyTemplate, "<script>", "https://x")
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestDispatcher_TransportFailure(t *testing.T) {
	tr := &recordingTransport{err: errors.New("SMTP error")}

	err := testDispatcher(tr).Send(context.Background(), "a@b.com", "s", "<p>x</p>")
	require.Error(t, err)

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "EMAIL_SEND_FAILED", oopsErr.Code())
	assert.Contains(t, err.Error(), "failed to send email to a@b.com")
}

func TestDispatcher_RejectsBadRecipient(t *testing.T) {
	tr := &recordingTransport{}

	err := testDispatcher(tr).Send(context.Background(), "not an address", "s", "<p>x</p>")
	assert.Error(t, err)
	assert.Empty(t, tr.sent)
}
