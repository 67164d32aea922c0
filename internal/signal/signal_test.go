package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildfarm/stepwatch/internal/outcome"
)

func TestMultiSkipsNil(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	s := Multi(a, nil, b)
	s.Signal(Tag{Kind: KindStatus, Payload: "Cooking maps"})

	assert.Equal(t, []Tag{{KindStatus, "Cooking maps"}}, a.Tags())
	assert.Equal(t, a.Tags(), b.Tags())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	s.Signal(Tag{Kind: KindWarning, Payload: "texture streaming pool over budget"})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "kind=warning")
	assert.Contains(t, out, `payload="texture streaming pool over budget"`)
}

func TestParsePerfCounter(t *testing.T) {
	key, v, ok := ParsePerfCounter("Cook Time Seconds 12.5")
	require.True(t, ok)
	assert.Equal(t, "Cook Time Seconds", key)
	assert.Equal(t, 12.5, v)

	for _, bad := range []string{"", "NoValue", "Name notanumber", " 3"} {
		_, _, ok := ParsePerfCounter(bad)
		assert.False(t, ok, bad)
	}
}

func TestPrometheusSink(t *testing.T) {
	reg := prom.NewRegistry()
	s := NewPrometheusSink(reg)

	s.Signal(Tag{Kind: KindPerf, Payload: "PackagesCooked 42"})
	s.Signal(Tag{Kind: KindPerf, Payload: "PackagesCooked 43"})
	s.Signal(Tag{Kind: KindPerf, Payload: "garbage"})
	s.Signal(Tag{Kind: KindStatus, Payload: "halfway"})
	s.RecordOutcome(outcome.Outcome{Code: outcome.CriticalError})

	assert.Equal(t, 43.0, testutil.ToFloat64(s.perf.WithLabelValues("PackagesCooked")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.tags.WithLabelValues("perf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.tags.WithLabelValues("status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.outcomes.WithLabelValues("critical-error")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 3)
}

func TestNilPrometheusSink(t *testing.T) {
	var s *PrometheusSink
	s.Signal(Tag{Kind: KindPerf, Payload: "x 1"})
	s.RecordOutcome(outcome.Outcome{Code: outcome.Success})
}

type fakePublisher struct {
	subjects []string
	bodies   [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, data)
	return f.err
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSink(pub, "", "step-7", nil)
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	s.Signal(Tag{Kind: KindStatus, Payload: "Compiling 10/200"})

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "stepwatch.signals.status", pub.subjects[0])

	var ev Event
	require.NoError(t, json.Unmarshal(pub.bodies[0], &ev))
	assert.Equal(t, "step-7", ev.Step)
	assert.Equal(t, Tag{KindStatus, "Compiling 10/200"}, ev.Tag)
	assert.True(t, ev.Time.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestNATSSinkSwallowsPublishErrors(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	s := NewNATSSink(pub, "farm", "", slog.New(slog.NewTextHandler(&buf, nil)))

	s.Signal(Tag{Kind: KindPerf, Payload: "x 1"})

	assert.Equal(t, []string{"farm.perf"}, pub.subjects)
	assert.True(t, strings.Contains(buf.String(), "connection closed"))
}
