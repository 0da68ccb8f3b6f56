// Package mailer opens authenticated SMTP submission sessions and
// delivers rendered messages through them.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/mailkite/mailkite/internal/config"
)

// Session is one authenticated SMTP connection. A session may be
// shared by concurrent senders; implementations serialize wire
// operations internally.
type Session interface {
	Send(ctx context.Context, msg *Message) error
	Close() error
}

// Dialer opens sessions for a sender identity.
type Dialer interface {
	Dial(ctx context.Context, senderEmail, password string) (Session, error)
}

// SMTPDialer connects to a fixed submission relay (implicit TLS or
// STARTTLS) and authenticates with SASL PLAIN.
type SMTPDialer struct {
	host     string
	port     int
	startTLS bool
	timeout  time.Duration
	logger   *slog.Logger
}

func NewDialer(cfg config.SMTPConfig, logger *slog.Logger) *SMTPDialer {
	return &SMTPDialer{
		host:     cfg.Host,
		port:     cfg.Port,
		startTLS: cfg.StartTLS,
		timeout:  cfg.DialTimeout,
		logger:   logger.With("component", "mailer"),
	}
}

// Dial opens and authenticates a session for the given sender.
func (d *SMTPDialer) Dial(ctx context.Context, senderEmail, password string) (Session, error) {
	client, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	auth := sasl.NewPlainClient("", senderEmail, password)
	if err := client.Auth(auth); err != nil {
		client.Close()
		return nil, fmt.Errorf("authentication failed for %s: %w", senderEmail, err)
	}

	d.logger.Debug("smtp session opened", "host", d.host, "sender", senderEmail)
	return &smtpSession{client: client, sender: senderEmail}, nil
}

// Verify checks a credential against the real relay without sending
// anything: dial, authenticate, quit.
func (d *SMTPDialer) Verify(ctx context.Context, senderEmail, password string) error {
	session, err := d.Dial(ctx, senderEmail, password)
	if err != nil {
		return err
	}
	return session.Close()
}

func (d *SMTPDialer) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(d.host, strconv.Itoa(d.port))
	dialer := &net.Dialer{Timeout: d.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connection failed to %s: %w", addr, err)
	}

	tlsConfig := &tls.Config{ServerName: d.host}

	var client *smtp.Client
	if d.startTLS {
		client, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	} else {
		client = smtp.NewClient(tls.Client(conn, tlsConfig))
	}

	client.CommandTimeout = d.timeout
	client.SubmissionTimeout = d.timeout

	return client, nil
}

// smtpSession serializes sends over one connection: SMTP allows only
// one transaction on the wire at a time.
type smtpSession struct {
	client *smtp.Client
	sender string
	mu     sync.Mutex
}

func (s *smtpSession) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.SendMail(s.sender, []string{msg.To}, bytes.NewReader(msg.Encode())); err != nil {
		return fmt.Errorf("delivery to %s failed: %w", msg.To, err)
	}
	return nil
}

func (s *smtpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Quit()
}
