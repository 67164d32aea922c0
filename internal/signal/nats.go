package signal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the part of *nats.Conn the NATS sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "stepwatch.signals"

// Event is the JSON body published for each tag.
type Event struct {
	Step string    `json:"step,omitempty"`
	Tag  Tag       `json:"tag"`
	Time time.Time `json:"time"`
}

// NATSSink publishes each tag to "<prefix>.<kind>". Publish failures are
// logged and otherwise ignored so a broker outage never fails a step.
type NATSSink struct {
	pub    Publisher
	prefix string
	step   string
	logger *slog.Logger
	now    func() time.Time
}

// NewNATSSink creates a sink publishing through pub. An empty prefix means
// DefaultSubjectPrefix.
func NewNATSSink(pub Publisher, prefix, step string, logger *slog.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{pub: pub, prefix: prefix, step: step, logger: logger, now: time.Now}
}

func (s *NATSSink) Signal(t Tag) {
	data, err := json.Marshal(Event{Step: s.step, Tag: t, Time: s.now().UTC()})
	if err != nil {
		s.logger.Debug("encoding signal", "error", err)
		return
	}
	subject := s.prefix + "." + string(t.Kind)
	if err := s.pub.Publish(subject, data); err != nil {
		s.logger.Warn("publishing signal", "subject", subject, "error", err)
	}
}

// ConnectNATS dials the broker at url.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("stepwatch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	logger.Debug("connected to NATS", "url", conn.ConnectedUrl())
	return conn, nil
}
