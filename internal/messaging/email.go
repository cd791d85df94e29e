package messaging

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"lead_automation_backend/platform/config"
	"lead_automation_backend/platform/logger"
)

// SMTPSender delivers email over SMTP via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	templates *Templates
	log       *logger.Logger

	// deliver is replaced in tests.
	deliver func(ctx context.Context, msg *gomail.Msg) error
}

// NewEmailSender returns an SMTP Sender, or Disabled when SMTP is not configured.
func NewEmailSender(cfg config.EmailConfig, templates *Templates, log *logger.Logger) Sender {
	if !cfg.IsEmailEnabled() {
		return Disabled{Channel: ChannelEmail}
	}
	return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(), cfg.GetEmailFromName(), templates, log)
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string, templates *Templates, log *logger.Logger) *SMTPSender {
	s := &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
		templates: templates,
		log:       log,
	}
	s.deliver = s.dialAndSend
	return s
}

func (s *SMTPSender) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	rendered, err := s.templates.Render(ChannelEmail, msg)
	if err != nil {
		return err
	}
	return s.SendMessage(ctx, rendered)
}

func (s *SMTPSender) SendMessage(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.Recipient)
	if _, err := mail.ParseAddress(to); err != nil || to == "" {
		return newError(ChannelEmail, CodeInvalidRecipient, "recipient is not a valid email address", err)
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return newError(ChannelEmail, CodeRender, "subject is empty", nil)
	}

	m := gomail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromEmail); err != nil {
		return newError(ChannelEmail, CodeRejected, "invalid from address", err)
	}
	if err := m.To(to); err != nil {
		return newError(ChannelEmail, CodeInvalidRecipient, "invalid recipient", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(bodyType(msg.Body), msg.Body)

	if err := s.deliver(ctx, m); err != nil {
		return newError(ChannelEmail, CodeTransport, "smtp send", err)
	}

	s.log.Info("email sent via smtp", "to", to)
	return nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, m *gomail.Msg) error {
	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, m)
}

func bodyType(body string) gomail.ContentType {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">") {
		return gomail.TypeTextHTML
	}
	return gomail.TypeTextPlain
}
