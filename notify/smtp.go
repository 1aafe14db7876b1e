package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/cppla/docintake/config"
)

const (
	dialTimeout = 5 * time.Second
	sendTimeout = 30 * time.Second
)

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// StartTLS upgrades plain connections when the server offers it.
	// Port 465 always uses implicit TLS.
	StartTLS bool
	To       []string
}

// SMTPConfigFrom reads the SMTP settings out of the application config.
func SMTPConfigFrom(cfg config.AppConfig) SMTPConfig {
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUsername
	}
	return SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     from,
		FromName: cfg.SMTPFromName,
		StartTLS: cfg.SMTPTLS,
		To:       recipients(cfg.NotifyTo),
	}
}

type sendFunc func(ctx context.Context, cfg SMTPConfig, msg []byte) error

// SMTPDispatcher mails each notification with the stored files attached.
type SMTPDispatcher struct {
	cfg  SMTPConfig
	send sendFunc
	now  func() time.Time
}

func NewSMTPDispatcher(cfg SMTPConfig) *SMTPDispatcher {
	return &SMTPDispatcher{cfg: cfg, send: sendMail, now: time.Now}
}

func (d *SMTPDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if d.cfg.Host == "" || d.cfg.From == "" || len(d.cfg.To) == 0 {
		return fmt.Errorf("smtp not configured")
	}
	msg, err := Compose(d.fromHeader(), d.cfg.To, n, d.now())
	if err != nil {
		return fmt.Errorf("compose notification: %w", err)
	}
	if err := d.send(ctx, d.cfg, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func (d *SMTPDispatcher) fromHeader() string {
	name := d.cfg.FromName
	if name == "" {
		name = "Document Intake"
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), d.cfg.From)
}

func sendMail(ctx context.Context, cfg SMTPConfig, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	deadline := time.Now().Add(sendTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	d := net.Dialer{Timeout: dialTimeout}
	var conn net.Conn
	var err error
	if cfg.Port == 465 {
		conn, err = tls.DialWithDialer(&d, "tcp", addr, &tls.Config{ServerName: cfg.Host})
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	// ensure we don't hang forever
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if cfg.StartTLS && cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				return err
			}
		}
	}
	if cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(cfg.From); err != nil {
		return err
	}
	for _, rcpt := range cfg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}
