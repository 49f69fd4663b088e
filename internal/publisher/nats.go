package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"pixelpath/internal/binding"
)

// SubjectPrefix is the first token of every frame subject.
const SubjectPrefix = "pixelpath"

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATSPublisher is a binding widget that publishes frames for external map and
// timeline clients.
type NATSPublisher struct {
	nc          conn
	logSubjects bool
	metrics     PublisherMetrics
	logger      *slog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url string, logSubjects bool, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("pixelpath"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
				return
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, logSubjects, m, logger), nil
}

func newPublisher(nc conn, logSubjects bool, m PublisherMetrics, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, logSubjects: logSubjects, metrics: m, logger: logger}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Subject is where frames of session are published.
func Subject(session string) string {
	return fmt.Sprintf("%s.%s.frame", SubjectPrefix, subjectToken(session))
}

// Render publishes f as JSON. It satisfies binding.Widget.
func (p *NATSPublisher) Render(_ context.Context, f binding.Frame) error {
	subject := Subject(f.Session)
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.Debug("nats publish", slog.String("subject", subject), slog.String("event", f.Event))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
