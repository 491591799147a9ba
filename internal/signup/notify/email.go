package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"text/template"
	"time"

	mail "github.com/go-mail/mail"

	"selfsignup/internal/signup/models"
	"selfsignup/pkg/email"
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Sender is satisfied by *mail.Dialer.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// NewDialer builds a go-mail dialer for cfg.
func NewDialer(cfg SMTPConfig) *mail.Dialer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return d
}

var (
	subjects = map[Template]string{
		TemplateAccountConfirmation:       "Confirm your account",
		TemplateResendAccountConfirmation: "Your new confirmation code",
	}

	textBody = template.Must(template.New("text").Parse(`Hi {{.Name}},

{{if .Resend}}A new confirmation code was requested for your account.{{else}}Thanks for signing up.{{end}}
Your confirmation code is: {{.Code}}
{{if .Link}}
Or confirm by opening: {{.Link}}
{{end}}
The code expires at {{.ExpiresAt}}.
`))
)

// EmailNotifier sends confirmation codes over SMTP.
type EmailNotifier struct {
	sender Sender
	from   string
	logger *slog.Logger
}

func NewEmailNotifier(sender Sender, from string, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{sender: sender, from: from, logger: logger}
}

func (e *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	msg, err := e.render(n)
	if err != nil {
		return err
	}

	// go-mail has no context support; the dial runs aside so ctx still bounds
	// how long the caller waits.
	done := make(chan error, 1)
	go func() { done <- e.sender.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			e.logger.ErrorContext(ctx, "smtp send failed",
				"recipient", email.Mask(n.Recipient),
				"error", err,
			)
			return fmt.Errorf("smtp send: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}

	e.logger.InfoContext(ctx, "confirmation email sent",
		"recipient", email.Mask(n.Recipient),
		"template", string(n.Template),
	)
	return nil
}

func (e *EmailNotifier) render(n Notification) (*mail.Message, error) {
	subject, ok := subjects[n.Template]
	if !ok {
		subject = subjects[TemplateAccountConfirmation]
	}

	var body bytes.Buffer
	err := textBody.Execute(&body, struct {
		Name      string
		Resend    bool
		Code      string
		Link      string
		ExpiresAt string
	}{
		Name:      email.DisplayName(n.Recipient),
		Resend:    n.Template == TemplateResendAccountConfirmation,
		Code:      n.Code,
		Link:      ConfirmationLink(n),
		ExpiresAt: n.ExpiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return nil, fmt.Errorf("render confirmation email: %w", err)
	}

	m := mail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", n.Recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body.String(), mail.SetPartEncoding(mail.Unencoded))
	return m, nil
}

// ConfirmationLink appends the code and user id to the callback property.
// Without a usable callback there is no link and the code stands alone.
func ConfirmationLink(n Notification) string {
	callback, ok := models.PropertyValue(n.Properties, models.PropertyCallback)
	if !ok || callback == "" {
		return ""
	}
	u, err := url.Parse(callback)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	q := u.Query()
	q.Set("confirmation", n.Code)
	q.Set("id", n.UserID.String())
	u.RawQuery = q.Encode()
	return u.String()
}
