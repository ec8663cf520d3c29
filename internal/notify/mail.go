package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/noticeflow/internal/config"
)

// ErrNoCredentials is returned when the sender address is not configured.
var ErrNoCredentials = errors.New("smtp: EMAIL_ADDRESS not configured")

// Mailer sends messages over SMTP, one transaction per call.
type Mailer struct {
	Host           string
	Port           int
	UseSSL         bool
	Timeout        time.Duration
	Username       string
	Password       string
	HideRecipients bool

	now     func() time.Time
	connect func(ctx context.Context) (net.Conn, error)
}

// NewMailer builds a Mailer from the distribution config and secrets.
func NewMailer(cfg config.Distribution, secrets config.Secrets) *Mailer {
	return &Mailer{
		Host:           cfg.SMTP.Host,
		Port:           cfg.SMTP.Port,
		UseSSL:         cfg.SMTP.UseSSL,
		Timeout:        cfg.SMTP.Timeout,
		Username:       secrets.EmailAddress,
		Password:       secrets.EmailPassword,
		HideRecipients: cfg.HideRecipients,
		now:            time.Now,
	}
}

// Send delivers msg to all recipients in a single SMTP transaction.
func (m *Mailer) Send(ctx context.Context, to []string, msg Message) error {
	if m.Username == "" {
		return ErrNoCredentials
	}
	if len(to) == 0 {
		return errors.New("smtp: no recipients")
	}

	body, err := m.build(to, msg)
	if err != nil {
		return err
	}

	connect := m.connect
	if connect == nil {
		connect = m.dial
	}
	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if m.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(m.Timeout)); err != nil {
			return fmt.Errorf("setting SMTP deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if !m.UseSSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
				return fmt.Errorf("starting TLS: %w", err)
			}
		}
	}
	if m.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", m.Username, m.Password, m.Host)); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(m.Username); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("setting recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("opening data writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data writer: %w", err)
	}
	return client.Quit()
}

func (m *Mailer) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	d := &net.Dialer{Timeout: m.Timeout}
	if m.UseSSL {
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: m.Host}}
		conn, err := td.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s over TLS: %w", addr, err)
		}
		return conn, nil
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, nil
}

// build assembles a multipart/alternative message with text and HTML parts.
func (m *Mailer) build(to []string, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	toHeader := strings.Join(to, ", ")
	if m.HideRecipients {
		toHeader = m.Username
	}
	now := time.Now
	if m.now != nil {
		now = m.now
	}

	fmt.Fprintf(&buf, "From: %s\r\n", m.Username)
	fmt.Fprintf(&buf, "To: %s\r\n", toHeader)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	parts := []struct{ contentType, body string }{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType + "; charset=utf-8"},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s part: %w", p.contentType, err)
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(p.body)); err != nil {
			return nil, fmt.Errorf("encoding %s part: %w", p.contentType, err)
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
