// Package classifier turns the text of one build step into an outcome.
//
// Classification is a single pass over the lines with a small amount of
// state: the current section, whether a summary has been reached (after which
// errors are not counted again), how many context lines are still owed to
// the last error, and the excerpt collected so far. A crash marker restarts
// the pass once from the first line with summary suppression lifted, so
// errors printed before the crash handler are reported too.
package classifier

import (
	"fmt"
	"iter"
	"strings"

	"github.com/buildfarm/stepwatch/internal/outcome"
	"github.com/buildfarm/stepwatch/internal/signal"
	"github.com/buildfarm/stepwatch/internal/steplog"
)

// Options select optional checks for one pass.
type Options struct {
	// ReportEverything reports every line and fails the step; for steps
	// whose only success criterion is that they ran.
	ReportEverything bool
	// CheckCooking honours the cooker success marker.
	CheckCooking bool
	// CheckPublishing honours the publish and cooker sync completion markers.
	CheckPublishing bool
	// Seed is the outcome slot as handed in, normally outcome.None or the
	// step kind. A step kind becomes the failure code.
	Seed outcome.Code
	// Signals receives side-channel tags. Nil drops them.
	Signals signal.Sink
}

// Result of a pass.
type Result struct {
	Outcome outcome.Outcome
	// Excerpt holds what was collected, including warnings of a step that
	// still succeeded.
	Excerpt string
	// AnyError reports whether any line counted as an error.
	AnyError bool
	// Rescanned reports whether a crash marker restarted the pass.
	Rescanned bool
}

// Classify runs one pass over lines.
func Classify(lines iter.Seq[string], opts Options) Result {
	s := NewStream(opts)
	for line := range lines {
		s.Feed(line)
	}
	return s.Finish()
}

// ClassifyLines runs one pass over a slice.
func ClassifyLines(lines []string, opts Options) Result {
	s := NewStream(opts)
	s.p.lines = lines
	s.p.run()
	return s.Finish()
}

// ClassifyFile reads and classifies a finished step log. A log that cannot
// be read yields outcome.LogOpenFailed naming the file.
func ClassifyFile(path string, opts Options) Result {
	lines, err := steplog.ReadLines(path)
	if err != nil {
		return Result{
			Outcome:  outcome.Infrastructure(outcome.LogOpenFailed, "Failed to open log file %s: %v", path, err),
			AnyError: true,
		}
	}
	return ClassifyLines(lines, opts)
}

// Stream classifies lines as they arrive. It keeps every line it has been
// fed so that a crash marker can restart the pass over live input.
type Stream struct {
	p *pass
}

// NewStream starts an empty pass.
func NewStream(opts Options) *Stream {
	return &Stream{p: newPass(opts)}
}

// Feed classifies one more line.
func (s *Stream) Feed(line string) {
	s.p.lines = append(s.p.lines, line)
	s.p.run()
}

// Finish returns the result for everything fed so far. Feeding may continue
// afterwards; Finish can be called again for an updated result.
func (s *Stream) Finish() Result {
	return s.p.result()
}

type pass struct {
	opts  Options
	lines []string
	next  int
	// seen is one past the furthest line visited; lines below it are being
	// rescanned.
	seen int

	sectionIdx      int
	sectionReported bool
	suppressed      bool
	relaxed         bool
	rescanned       bool
	pending         int

	anyError         bool
	critical         bool
	warningsAsErrors bool
	successCode      outcome.Code
	specificCode     outcome.Code

	excerpt  []string
	appended map[int]bool

	// hit is the error pattern found by the error rule's predicate.
	hit *pattern
}

func newPass(opts Options) *pass {
	return &pass{
		opts:         opts,
		sectionIdx:   -1,
		successCode:  outcome.None,
		specificCode: outcome.None,
		appended:     make(map[int]bool),
	}
}

func (p *pass) run() {
	for p.next < len(p.lines) {
		i := p.next
		p.next++
		p.step(i)
		if i >= p.seen {
			p.seen = i + 1
		}
	}
}

func (p *pass) step(i int) {
	text := steplog.StripStamp(p.lines[i])
	for _, r := range rules {
		if r.when(p, text) {
			r.apply(p, i, text)
			return
		}
	}
}

// appendLine adds line i as the tool printed it, without the log stamp, so
// a live run and a later classification of its log agree. A line is never
// added twice, which keeps a rescan from duplicating what the first pass
// already collected.
func (p *pass) appendLine(i int) {
	if p.appended[i] {
		return
	}
	p.appended[i] = true
	p.excerpt = append(p.excerpt, steplog.StripStamp(p.lines[i]))
}

func (p *pass) reportSection() {
	if p.sectionReported {
		return
	}
	p.sectionReported = true
	if p.sectionIdx >= 0 {
		p.appendLine(p.sectionIdx)
	}
}

func (p *pass) recordError(i, context int, code outcome.Code) {
	p.anyError = true
	p.reportSection()
	p.appendLine(i)
	if context > p.pending {
		p.pending = context
	}
	if code != outcome.None && code != "" && p.specificCode == outcome.None {
		p.specificCode = code
	}
}

func (p *pass) recordWarning(i int) {
	if p.appended[i] {
		return
	}
	p.reportSection()
	p.appended[i] = true
	p.excerpt = append(p.excerpt, WarningBegin, steplog.StripStamp(p.lines[i]), WarningEnd)
}

func (p *pass) crash(i int) {
	p.suppressed = false
	if p.rescanned {
		p.anyError = true
		p.reportSection()
		p.appendLine(i)
		p.pending = crashContext
		return
	}

	p.rescanned = true
	p.relaxed = true
	p.critical = true
	p.anyError = true
	p.appendLine(i)

	p.sectionIdx = -1
	p.sectionReported = false
	p.pending = 0
	p.next = 0
}

func (p *pass) successFor(text string) outcome.Code {
	if p.opts.CheckCooking && containsAny(text, cookingSuccessMarkers) {
		return outcome.CookingSuccess
	}
	if p.opts.CheckPublishing && containsAny(text, publishSuccessMarkers) {
		return outcome.PublishSuccess
	}
	return outcome.None
}

func (p *pass) result() Result {
	r := Result{
		Excerpt:   strings.Join(p.excerpt, "\n"),
		AnyError:  p.anyError,
		Rescanned: p.rescanned,
	}
	if !p.anyError {
		code := outcome.Success
		if p.successCode != outcome.None {
			code = p.successCode
		}
		r.Outcome = outcome.Outcome{Code: code, Text: outcome.SucceededText}
		return r
	}

	code := outcome.Failed
	switch {
	case p.critical:
		code = outcome.CriticalError
	case p.successCode != outcome.None:
		code = p.successCode
	case p.specificCode != outcome.None:
		code = p.specificCode
	case p.opts.Seed.IsStep():
		code = p.opts.Seed
	}
	r.Outcome = outcome.Outcome{Code: code, Text: r.Excerpt}
	return r
}

// String renders a result for logs and the command line.
func (r Result) String() string {
	if r.Rescanned {
		return fmt.Sprintf("%s (rescanned after crash)", r.Outcome.Code)
	}
	return r.Outcome.Code.String()
}
