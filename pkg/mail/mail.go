// Package mail is a small fluent SMTP mailer.
//
//	mail.To(order.Email).
//	    Subject("Your Bunkar order is confirmed").
//	    Render(templates.OrderPaid, order).
//	    Send()
package mail

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"sync"

	"github.com/shashiranjanraj/bunkar/config"
)

// ErrNotConfigured is returned when MAIL_HOST is empty.
var ErrNotConfigured = errors.New("mail: MAIL_HOST not configured")

// SMTP holds connection credentials.
type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

func defaultSMTP() SMTP {
	return SMTP{
		Host:     config.MailHost(),
		Port:     config.MailPort(),
		Username: config.MailUsername(),
		Password: config.MailPassword(),
		From:     config.MailFrom(),
		FromName: config.Get("MAIL_FROM_NAME", "Bunkar"),
	}
}

// Sender delivers a rendered message. The default talks SMTP.
type Sender func(cfg SMTP, to []string, raw []byte) error

var (
	senderMu sync.RWMutex
	sender   Sender = sendSMTP
)

// UseSender replaces the transport and returns a function restoring the
// previous one.
func UseSender(s Sender) (restore func()) {
	senderMu.Lock()
	prev := sender
	sender = s
	senderMu.Unlock()
	return func() {
		senderMu.Lock()
		sender = prev
		senderMu.Unlock()
	}
}

// Message is an email being built.
type Message struct {
	to      []string
	cc      []string
	subject string
	body    string
	isHTML  bool
	err     error
	smtpCfg SMTP
}

// To sets the primary recipients.
func To(addresses ...string) *Message {
	return &Message{
		to:      addresses,
		isHTML:  true,
		smtpCfg: defaultSMTP(),
	}
}

// CC adds CC recipients.
func (m *Message) CC(addresses ...string) *Message {
	m.cc = append(m.cc, addresses...)
	return m
}

func (m *Message) Subject(s string) *Message {
	m.subject = s
	return m
}

// Body sets an HTML body.
func (m *Message) Body(html string) *Message {
	m.body = html
	m.isHTML = true
	return m
}

// Text sets a plain-text body.
func (m *Message) Text(text string) *Message {
	m.body = text
	m.isHTML = false
	return m
}

// Render executes tmpl with data as the HTML body. A render error is
// reported by Send.
func (m *Message) Render(tmpl *template.Template, data any) *Message {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		m.err = fmt.Errorf("mail: render %s: %w", tmpl.Name(), err)
		return m
	}
	m.body = buf.String()
	m.isHTML = true
	return m
}

// UseConfig overrides the SMTP settings for this message.
func (m *Message) UseConfig(cfg SMTP) *Message {
	m.smtpCfg = cfg
	return m
}

// Send delivers the email.
func (m *Message) Send() error {
	if m.err != nil {
		return m.err
	}
	if len(m.to) == 0 {
		return errors.New("mail: no recipients")
	}

	senderMu.RLock()
	s := sender
	senderMu.RUnlock()

	all := append(append([]string{}, m.to...), m.cc...)
	return s(m.smtpCfg, all, m.buildRaw())
}

func sendSMTP(cfg SMTP, to []string, raw []byte) error {
	if cfg.Host == "" {
		return ErrNotConfigured
	}

	addr := cfg.Host + ":" + cfg.Port
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	// Implicit TLS on 465, STARTTLS otherwise.
	if cfg.Port == "465" {
		return sendTLS(addr, auth, cfg.From, to, raw, cfg.Host)
	}
	return smtp.SendMail(addr, auth, cfg.From, to, raw)
}

func sendTLS(addr string, auth smtp.Auth, from string, to []string, raw []byte, host string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("mail: TLS dial: %w", err)
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer client.Quit()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	return w.Close()
}

func (m *Message) buildRaw() []byte {
	contentType := "text/plain"
	if m.isHTML {
		contentType = "text/html"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", m.smtpCfg.FromName, m.smtpCfg.From))
	b.WriteString("To: " + strings.Join(m.to, ", ") + "\r\n")
	if len(m.cc) > 0 {
		b.WriteString("Cc: " + strings.Join(m.cc, ", ") + "\r\n")
	}
	b.WriteString("Subject: " + m.subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: %s; charset=\"UTF-8\"\r\n", contentType))
	b.WriteString("\r\n")
	b.WriteString(m.body)
	return []byte(b.String())
}
