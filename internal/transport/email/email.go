// Package email sends reminder mail through a centrally configured SMTP
// account. The account's address is always the envelope sender; an optional
// Reply-To points answers back at the operator.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "remibot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	FromName string
	ReplyTo  string
	// UseSSL selects implicit TLS (port 465). Off means STARTTLS.
	UseSSL bool
}

type Sender struct {
	mu  sync.RWMutex
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Sender {
	return &Sender{cfg: normalize(cfg), log: log}
}

// Apply swaps the SMTP settings; in-flight sends keep their snapshot.
func (s *Sender) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = normalize(cfg)
	s.mu.Unlock()
}

func normalize(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if strings.TrimSpace(cfg.FromName) == "" {
		cfg.FromName = "Recordatorios"
	}
	return cfg
}

func (s *Sender) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Sender) Enabled() bool { return s.config().Enabled }

// Send delivers one plain-text mail. It dials per message; reminder volume
// does not justify connection pooling.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	cfg := s.config()
	if !cfg.Enabled {
		return errors.New("email sender disabled")
	}
	if strings.TrimSpace(cfg.Username) == "" || strings.TrimSpace(cfg.Password) == "" {
		return errors.New("smtp credentials not configured")
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("empty recipient")
	}

	c, err := dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer c.Quit()

	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := c.Mail(cfg.Username); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(compose(cfg, to, subject, body)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	s.log.Debug("email sent", logx.String("to", to), logx.String("subject", subject))
	return nil
}

func compose(cfg Config, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", cfg.FromName, cfg.Username)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if strings.TrimSpace(cfg.ReplyTo) != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", cfg.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func dial(ctx context.Context, cfg Config) (*smtp.Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	d := net.Dialer{Timeout: 15 * time.Second}

	if cfg.UseSSL {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		tlsConn := tls.Client(conn, &tls.Config{ServerName: cfg.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return smtp.NewClient(tlsConn, cfg.Host)
	}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
