// Package notify delivers invitation codes to candidates. Delivery is
// best-effort and fire-and-forget: a failed send is logged, never
// surfaced to the invite-creation caller.
package notify

import (
	"bytes"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	gomail "gopkg.in/gomail.v2"
)

// Notifier sends an access code and test window to a candidate.
type Notifier interface {
	Invite(email, code string, windowStart, windowEnd time.Time) error
}

// Config holds SMTP and branding settings for the mailer.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	CompanyName string
	TestName    string
	PortalURL   string
}

// Configured reports whether enough SMTP settings are present to send.
func (c Config) Configured() bool {
	return c.Host != "" && c.From != ""
}

var inviteTmpl = template.Must(template.New("invite").Parse(`Hi {{.Email}},

You have been invited to attend an online hiring assessment conducted by {{.Company}}.

Assessment Details:

Company Name      : {{.Company}}
Assessment Name   : {{.TestName}}

Test Start Time   : {{.Start}}
Test End Time     : {{.End}}

Login Instructions:
1. Open the test portal at the scheduled time.
2. Enter your access code to begin the assessment.
3. The test is accessible only within the given time window.

Test Link:
{{.PortalURL}}

Your access code: {{.Code}}

Important Notes:
- The test will automatically close at the end time.
- If you do not submit before the end time, your attempt will be marked as expired.
- No autosave is available after time expiry.

Best of luck!

Regards,
Recruitment Team
{{.Company}}
`))

// Mailer sends invitations over SMTP with STARTTLS.
type Mailer struct {
	cfg Config
}

// NewMailer creates an SMTP-backed notifier.
func NewMailer(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Invite(email, code string, windowStart, windowEnd time.Time) error {
	body, err := RenderInvite(m.cfg, email, code, windowStart, windowEnd)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", "Your Hiring Test Invitation")
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send invite to %s: %w", email, err)
	}
	return nil
}

// RenderInvite produces the invitation body text.
func RenderInvite(cfg Config, email, code string, windowStart, windowEnd time.Time) (string, error) {
	data := struct {
		Email, Company, TestName, PortalURL, Code, Start, End string
	}{
		Email:     email,
		Company:   cfg.CompanyName,
		TestName:  cfg.TestName,
		PortalURL: cfg.PortalURL,
		Code:      code,
		Start:     windowStart.Format("2006-01-02 15:04 MST"),
		End:       windowEnd.Format("2006-01-02 15:04 MST"),
	}
	var buf bytes.Buffer
	if err := inviteTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render invite: %w", err)
	}
	return buf.String(), nil
}

// LogNotifier logs invites instead of sending them. Used when SMTP is
// not configured, so local runs still show the generated codes.
type LogNotifier struct{}

func (LogNotifier) Invite(email, code string, windowStart, windowEnd time.Time) error {
	slog.Info("invite (mail not configured)",
		"email", email,
		"code", code,
		"window_start", windowStart,
		"window_end", windowEnd,
	)
	return nil
}
