package signal

import (
	"strconv"
	"strings"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/buildfarm/stepwatch/internal/outcome"
)

// PrometheusSink exports tags and step outcomes as metrics. Performance
// counter payloads of the form "Name Value" become gauge samples.
type PrometheusSink struct {
	tags     *prom.CounterVec
	perf     *prom.GaugeVec
	outcomes *prom.CounterVec
}

// NewPrometheusSink registers the sink's metrics on reg, or on a private
// registry when reg is nil.
func NewPrometheusSink(reg prom.Registerer) *PrometheusSink {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	s := &PrometheusSink{
		tags: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "stepwatch",
			Name:      "signals_total",
			Help:      "Side-channel tags seen in step output, by kind",
		}, []string{"kind"}),
		perf: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "stepwatch",
			Name:      "perf_counter",
			Help:      "Last value reported for each performance counter",
		}, []string{"key"}),
		outcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "stepwatch",
			Name:      "step_outcomes_total",
			Help:      "Classified step outcomes, by code",
		}, []string{"code"}),
	}
	reg.MustRegister(s.tags, s.perf, s.outcomes)
	return s
}

func (s *PrometheusSink) Signal(t Tag) {
	if s == nil {
		return
	}
	s.tags.WithLabelValues(string(t.Kind)).Inc()
	if t.Kind != KindPerf {
		return
	}
	if key, value, ok := ParsePerfCounter(t.Payload); ok {
		s.perf.WithLabelValues(key).Set(value)
	}
}

// RecordOutcome counts one finished step.
func (s *PrometheusSink) RecordOutcome(o outcome.Outcome) {
	if s == nil {
		return
	}
	s.outcomes.WithLabelValues(o.Code.String()).Inc()
}

// ParsePerfCounter splits a "Name Value" payload. The value is the last
// field, so names may contain spaces.
func ParsePerfCounter(payload string) (string, float64, bool) {
	payload = strings.TrimSpace(payload)
	i := strings.LastIndexAny(payload, " \t")
	if i <= 0 {
		return "", 0, false
	}
	v, err := strconv.ParseFloat(payload[i+1:], 64)
	if err != nil {
		return "", 0, false
	}
	return strings.TrimSpace(payload[:i]), v, true
}
