// Package mail sends the transactional security emails over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

const (
	SubjectVerifyEmail   = "Verify your email"
	SubjectResetPassword = "Reset your password"
)

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	DisplayName string
}

// transport is satisfied by *gomail.Client.
type transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

type Dispatcher struct {
	transport   transport
	from        string
	displayName string
	baseURL     string
}

// NewSMTPDispatcher connects with STARTTLS and PLAIN auth when credentials are set.
func NewSMTPDispatcher(cfg SMTPConfig, baseURL string) (*Dispatcher, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSMandatory),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("SMTP_CLIENT_FAILED").With("host", cfg.Host).Wrap(err)
	}
	return newDispatcher(client, cfg, baseURL), nil
}

func newDispatcher(t transport, cfg SMTPConfig, baseURL string) *Dispatcher {
	displayName := cfg.DisplayName
	if displayName == "" {
		displayName = "ZHSystem System"
	}
	return &Dispatcher{
		transport:   t,
		from:        cfg.From,
		displayName: displayName,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// Send delivers one HTML message. Any failure comes back as an EMAIL_SEND_FAILED error.
func (d *Dispatcher) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(d.displayName, d.from); err != nil {
		return sendError(to, err)
	}
	if err := msg.To(to); err != nil {
		return sendError(to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	if err := d.transport.DialAndSendWithContext(ctx, msg); err != nil {
		return sendError(to, err)
	}
	return nil
}

func (d *Dispatcher) SendVerification(ctx context.Context, to string, name string, token string) error {
	body, err := render(verifyTemplate, name, d.link("/auth/verify-email", token))
	if err != nil {
		return err
	}
	return d.Send(ctx, to, SubjectVerifyEmail, body)
}

func (d *Dispatcher) SendPasswordReset(ctx context.Context, to string, name string, token string) error {
	body, err := render(resetTemplate, name, d.link("/auth/reset-password", token))
	if err != nil {
		return err
	}
	return d.Send(ctx, to, SubjectResetPassword, body)
}

func (d *Dispatcher) link(path string, token string) string {
	return d.baseURL + path + "?token=" + url.QueryEscape(token)
}

func sendError(to string, err error) error {
	return oops.Code("EMAIL_SEND_FAILED").With("to", to).Wrapf(err, "failed to send email to %s", to)
}

func render(tmpl *template.Template, name string, link string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Name, Link string }{name, link}); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

var verifyTemplate = template.Must(template.New("verify").Parse(`
<div style="font-family: Arial, sans-serif; border: 1px solid #eee; padding: 20px;">
    <h2>Welcome to ZHSystem, {{.Name}}!</h2>
    <p>Please verify your email by clicking the link below:</p>
    <div style="margin-top: 20px;">
        <a href="{{.Link}}" style="background-color: #007bff; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Verify Email</a>
    </div>
    <p style="margin-top: 20px; font-size: 0.8em; color: #777;">If the button doesn't work, copy and paste this link: <br/> {{.Link}}</p>
</div>`))

var resetTemplate = template.Must(template.New("reset").Parse(`
<div style="font-family: Arial, sans-serif; border: 1px solid #eee; padding: 20px;">
    <h2>Hello {{.Name}},</h2>
    <p>We received a request to reset your password. The link expires in 30 minutes.</p>
    <div style="margin-top: 20px;">
        <a href="{{.Link}}" style="background-color: #dc3545; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Reset Password</a>
    </div>
    <p style="margin-top: 20px; font-size: 0.8em; color: #777;">If you did not ask for this, you can ignore this email.</p>
</div>`))
