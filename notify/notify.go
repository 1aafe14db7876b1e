// Package notify delivers the "new documents received" notice once an intake
// has been stored. Delivery is best-effort: callers log a failure and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cppla/docintake/config"
	"github.com/cppla/docintake/models"
	"github.com/cppla/docintake/utils"
)

// Attachment is one stored file referenced by a notification.
type Attachment struct {
	Category     string
	Label        string
	OriginalName string
	StoredName   string
	ContentType  string
	Size         int64
	Path         string
}

// Notification describes a completed intake.
type Notification struct {
	RequestID     string
	Slug          string
	ApplicationID string
	CustomerName  string
	CustomerEmail string
	ReceivedAt    time.Time
	Files         []Attachment
}

// Subject is the mail subject line.
func (n Notification) Subject() string {
	app := n.ApplicationID
	if app == "" {
		app = "(none)"
	}
	s := "New docs for Application " + app
	if n.CustomerName != "" {
		s += " - " + n.CustomerName
	}
	return s
}

// FromManifest builds a notification for a written manifest.
func FromManifest(m models.Manifest) Notification {
	n := Notification{
		RequestID:     m.RequestID,
		Slug:          m.Slug,
		ApplicationID: deref(m.ApplicationID),
		CustomerName:  deref(m.CustomerName),
		CustomerEmail: deref(m.CustomerEmail),
		ReceivedAt:    m.ReceivedAt,
		Files:         make([]Attachment, 0, len(m.Details)),
	}
	for _, d := range m.Details {
		n.Files = append(n.Files, Attachment{
			Category:     d.Category,
			Label:        d.Label,
			OriginalName: d.OriginalName,
			StoredName:   d.StoredName,
			ContentType:  d.ContentType,
			Size:         d.Size,
			Path:         d.Path,
		})
	}
	return n
}

// Dispatcher delivers notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// New returns the dispatchers the configuration enables: SMTP mail (or a
// logging stand-in when mail is not configured) plus Kafka events when brokers are set.
func New(cfg config.AppConfig) Dispatcher {
	var mail Dispatcher
	if cfg.SMTPHost == "" || len(recipients(cfg.NotifyTo)) == 0 {
		utils.Sugar.Warn("SMTP or NOTIFY_TO not configured, intake notifications will only be logged")
		mail = LogDispatcher{}
	} else {
		mail = NewSMTPDispatcher(SMTPConfigFrom(cfg))
	}
	if len(cfg.KafkaBrokers) == 0 {
		return mail
	}
	return Multi{mail, NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)}
}

// Multi dispatches to every member and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every member that holds resources.
func (m Multi) Close() error {
	var errs []error
	for _, d := range m {
		if c, ok := d.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// LogDispatcher writes notifications to the application log.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	names := make([]string, 0, len(n.Files))
	for _, f := range n.Files {
		names = append(names, f.StoredName)
	}
	utils.Sugar.Infow("intake notification",
		"request_id", n.RequestID,
		"slug", n.Slug,
		"application_id", n.ApplicationID,
		"subject", n.Subject(),
		"files", names,
	)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func recipients(list string) []string {
	var out []string
	for _, r := range strings.Split(list, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func kb(size int64) string {
	return fmt.Sprintf("%d KB", (size+512)/1024)
}
