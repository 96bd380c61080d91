package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/nats-io/nats.go"

	"github.com/stonecode/pickmyroute/server/internal/lib/format"
	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
)

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATSPublisher publishes emitted navigation progress as JSON on
// <prefix>.<sessionID>.
type NATSPublisher struct {
	nc          conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	now         func() time.Time
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Options configures the NATS connection.
type Options struct {
	URL           string
	ClientName    string
	SubjectPrefix string
	LogSubjects   bool
}

func NewNATSPublisher(opts Options, m PublisherMetrics) (*NATSPublisher, error) {
	events := connEvents{metrics: m}
	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.ClientName),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) { events.disconnected(err) }),
		nats.ReconnectHandler(func(_ *nats.Conn) { events.reconnected() }),
		nats.ClosedHandler(func(_ *nats.Conn) { events.closed() }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", opts.URL, err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, opts, m), nil
}

// connEvents reports connection state changes to the log and to metrics.
type connEvents struct {
	metrics PublisherMetrics
}

func (e connEvents) disconnected(err error) {
	e.setConnected(false)
	logging.Errorw(context.Background(), "NATS disconnected", "error", err)
}

func (e connEvents) reconnected() {
	e.setConnected(true)
	logging.Infow(context.Background(), "NATS reconnected")
}

func (e connEvents) closed() {
	e.setConnected(false)
	logging.Infow(context.Background(), "NATS connection closed")
}

func (e connEvents) setConnected(connected bool) {
	if e.metrics != nil {
		e.metrics.NATSSetConnected(connected)
	}
}

func newPublisher(nc conn, opts Options, m PublisherMetrics) *NATSPublisher {
	prefix := strings.Trim(opts.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "navigation.progress"
	}
	return &NATSPublisher{
		nc:          nc,
		prefix:      prefix,
		logSubjects: opts.LogSubjects,
		metrics:     m,
		now:         time.Now,
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			logging.Errorw(context.Background(), "NATS drain failed", "error", err)
		}
		p.nc.Close()
	}
}

// ProgressMessage is the wire form of one emitted progress update.
type ProgressMessage struct {
	SessionID  string    `json:"sessionId"`
	Timestamp  time.Time `json:"timestamp"`
	Navigating bool      `json:"navigating"`

	StepIndex            *int     `json:"stepIndex"`
	LegIndex             *int     `json:"legIndex,omitempty"`
	Instruction          string   `json:"instruction,omitempty"`
	Maneuver             string   `json:"maneuver"`
	RemainingMeters      *float64 `json:"remainingMeters"`
	RemainingText        string   `json:"remainingText,omitempty"`
	RouteRemainingMeters *float64 `json:"routeRemainingMeters,omitempty"`
	ManeuverImminent     bool     `json:"maneuverImminent"`
	OffRoute             bool     `json:"offRoute"`
	OffRouteMeters       *float64 `json:"offRouteMeters,omitempty"`
}

// NewProgressMessage builds the wire message for a session's progress.
func NewProgressMessage(sessionID string, p navigation.Progress, at time.Time) ProgressMessage {
	msg := ProgressMessage{
		SessionID:            sessionID,
		Timestamp:            at.UTC(),
		Navigating:           p.Navigating,
		StepIndex:            p.StepIndex,
		LegIndex:             p.LegIndex,
		Instruction:          p.Instruction,
		Maneuver:             p.Maneuver.String(),
		RemainingMeters:      p.RemainingMeters,
		RouteRemainingMeters: p.RouteRemainingMeters,
		ManeuverImminent:     p.ManeuverImminent,
		OffRoute:             p.OffRoute,
		OffRouteMeters:       p.OffRouteMeters,
	}
	if p.RemainingMeters != nil {
		msg.RemainingText = format.Distance(*p.RemainingMeters)
	}
	return msg
}

// Subject returns the subject progress for sessionID is published on.
func (p *NATSPublisher) Subject(sessionID string) string {
	return fmt.Sprintf("%s.%s", p.prefix, subjectToken(sessionID))
}

// Publish sends one progress update. It implements the navigation service's
// progress sink.
func (p *NATSPublisher) Publish(ctx context.Context, sessionID string, progress navigation.Progress) error {
	subject := p.Subject(sessionID)
	b, err := json.Marshal(NewProgressMessage(sessionID, progress, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if p.logSubjects {
		logging.Infow(ctx, "NATS publish", "subject", subject)
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
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
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
