package admission

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/loganventer/loganventerprofile-sub000/internal/session"
	"github.com/loganventer/loganventerprofile-sub000/pkg/email"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

// Notifier delivers best-effort notices about access requests.
type Notifier interface {
	AccessRequested(ctx context.Context, req session.PendingRequest) error
	AccessApproved(ctx context.Context, to string, tok session.Token) error
}

// NopNotifier drops every notice.
type NopNotifier struct{}

func (NopNotifier) AccessRequested(context.Context, session.PendingRequest) error { return nil }
func (NopNotifier) AccessApproved(context.Context, string, session.Token) error { return nil }

// NotifierConfig configures the email notifier.
type NotifierConfig struct {
	SMTP email.Config
	// OwnerEmail receives new-request notices.
	OwnerEmail string
	// SiteURL is linked from approval notices.
	SiteURL string
}

// EmailNotifier sends notices over SMTP.
type EmailNotifier struct {
	sender *email.Sender
	cfg    NotifierConfig
	logger logging.Logger
}

// NewNotifier returns an EmailNotifier when SMTP and an owner address are
// configured, and a NopNotifier otherwise.
func NewNotifier(cfg NotifierConfig, logger logging.Logger) Notifier {
	if !cfg.SMTP.Configured() || strings.TrimSpace(cfg.OwnerEmail) == "" {
		if logger != nil {
			logger.Info("Email notifier not configured, access notices disabled")
		}
		return NopNotifier{}
	}
	return &EmailNotifier{sender: email.NewSender(cfg.SMTP), cfg: cfg, logger: logger}
}

type requestEmailData struct {
	ID        string
	IP        string
	UserAgent string
	DeviceID  string
	Email     string
	At        time.Time
}

type approvalEmailData struct {
	Expires time.Time
	Minutes int
	SiteURL string
}

func (n *EmailNotifier) AccessRequested(ctx context.Context, req session.PendingRequest) error {
	body, err := render(requestTemplate, requestEmailData{
		ID:        req.ID,
		IP:        req.IP,
		UserAgent: req.UA,
		DeviceID:  req.DeviceID,
		Email:     req.Email,
		At:        time.UnixMilli(req.TS).UTC(),
	})
	if err != nil {
		return fmt.Errorf("render request email: %w", err)
	}
	subject := fmt.Sprintf("Concierge access request %s", req.ID)
	return n.send(ctx, n.cfg.OwnerEmail, subject, body)
}

func (n *EmailNotifier) AccessApproved(ctx context.Context, to string, tok session.Token) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("approval recipient email missing")
	}
	body, err := render(approvalTemplate, approvalEmailData{
		Expires: time.UnixMilli(tok.Expires).UTC(),
		Minutes: tok.TimeoutMinutes,
		SiteURL: n.cfg.SiteURL,
	})
	if err != nil {
		return fmt.Errorf("render approval email: %w", err)
	}
	return n.send(ctx, to, "Your portfolio chat access is ready", body)
}

func (n *EmailNotifier) send(ctx context.Context, to, subject, body string) error {
	if err := n.sender.SendMail(ctx, to, subject, body); err != nil {
		n.logger.WithFields(logging.Fields{
			"error": err.Error(),
			"to":    to,
		}).Error("Failed to send access email")
		return err
	}
	n.logger.WithField("to", to).Info("Access email sent")
	return nil
}

var (
	requestTemplate = template.Must(template.New("request").Parse(`A visitor asked for chat access.

Request: {{.ID}}
IP: {{.IP}}
{{- if .DeviceID}}
Device: {{.DeviceID}}{{end}}
{{- if .Email}}
Email: {{.Email}}{{end}}
User agent: {{.UserAgent}}
Received: {{.At.Format "2006-01-02 15:04 MST"}}

Approve with the "approve" action and request_id {{.ID}}.
`))

	approvalTemplate = template.Must(template.New("approval").Parse(`Hello,

Your request to chat with the portfolio concierge was approved.
Access lasts {{.Minutes}} minutes and ends at {{.Expires.Format "2006-01-02 15:04 MST"}}.
{{- if .SiteURL}}

Continue at {{.SiteURL}}{{end}}
`))
)

func render(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
