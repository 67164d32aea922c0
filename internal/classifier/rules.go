package classifier

import (
	"strings"

	"github.com/buildfarm/stepwatch/internal/outcome"
	"github.com/buildfarm/stepwatch/internal/signal"
)

// Structural markers.
var (
	sectionMarkers = []string{"------", "Entering directory"}
	summaryMarkers = []string{"Warning/Error Summary", "========== Build:"}
	crashMarkers   = []string{"=== Critical error: ===", "appError called:"}

	cookingSuccessMarkers = []string{"Success - 0 error(s)"}
	publishSuccessMarkers = []string{"CookerSync completed", "Publish complete"}

	warningMarkers = []string{"): warning ", ": warning:"}
)

// Excerpt brackets around a captured warning.
const (
	WarningBegin = ">>> warning"
	WarningEnd   = "<<< warning"
)

// crashContext is how many lines after a crash marker hold the call stack.
const crashContext = 10

// pattern is one entry of the error table. Context is the number of lines
// after the match that belong to the same error.
type pattern struct {
	text    string
	prefix  bool
	context int
	code    outcome.Code
	// warningsAsErrors marks the tool telling us it promotes warnings.
	warningsAsErrors bool
}

func (p *pattern) matches(line string) bool {
	if p.prefix {
		return strings.HasPrefix(line, p.text)
	}
	return strings.Contains(line, p.text)
}

// errorTable is ordered: the first matching entry decides context and code.
var errorTable = []pattern{
	// Promotion must win over the generic compiler entries below.
	{text: "the following warning is treated as an error", warningsAsErrors: true},
	{text: "warning treated as error", warningsAsErrors: true},
	{text: "warnings being treated as errors", warningsAsErrors: true},

	// Network shares vanishing mid-step.
	{text: "=> NETWORK ", code: outcome.NetworkVanished},
	{text: "The specified network name is no longer available", code: outcome.NetworkVanished},
	{text: "The network path was not found", code: outcome.NetworkVanished},
	{text: "An unexpected network error occurred", code: outcome.NetworkVanished},

	// Linker and distributed build coordinator failures.
	{text: "Internal Linker Exception:", context: 10},
	{text: "LNK1103"},
	{text: "LNK1201"},
	{text: "LNK1104"},
	{text: "Fatal Error: Failed to initiate build", context: 1},
	{text: "fatal error LNK"},
	{text: "error LNK"},

	// Compilers.
	{text: "cl : Command line error"},
	{text: ": fatal error C", context: 1},
	{text: ": error C"},
	{text: "error CS"},
	{text: "error MSB"},
	{text: "error RC"},
	{text: ": error X"},
	{text: ": fatal error:", context: 2},
	{text: ": error:", context: 2},
	{text: "undefined reference to"},
	{text: "ld returned 1 exit status"},
	{text: "BUILD FAILED"},

	// Asset cooking and shader builds.
	{text: "LogCook: Error:", context: 1},
	{text: "Failed to compile shader", context: 4},
	{text: "Shader compile failed", context: 4},
	{text: "Cook failed"},
	{text: "Error: ", prefix: true, context: 1},
	{text: "ERROR: ", prefix: true, context: 1},

	// Platform SDK tools.
	{text: "SDK not found"},
	{text: "Could not find platform SDK"},
	{text: "signing failed", context: 2},

	// Source control.
	{text: "Perforce password (P4PASSWD) invalid or unset"},
	{text: "can't clobber writable file"},

	// Runtime and filesystem faults.
	{text: "Unhandled Exception:", context: 10},
	{text: "Traceback (most recent call last):", context: 10},
	{text: "Assertion failed:", context: 6},
	{text: "Fatal error:", context: 4},
	{text: "Out of memory", context: 4},
	{text: "Ran out of memory", context: 4},
	{text: "System.IO.IOException", context: 4},
	{text: "There is not enough space on the disk"},
	{text: "No space left on device"},
	{text: "Access to the path"},
	{text: "is not recognized as an internal or external command"},
	{text: "The system cannot find the path specified"},
	{text: "The system cannot find the file specified"},
	{text: "Segmentation fault"},
}

func findPattern(line string) *pattern {
	for i := range errorTable {
		if errorTable[i].matches(line) {
			return &errorTable[i]
		}
	}
	return nil
}

var tagMarkers = []struct {
	marker string
	kind   signal.Kind
}{
	{"[STATUS] ", signal.KindStatus},
	{"[WARNING] ", signal.KindWarning},
	{"[PERFCOUNTER] ", signal.KindPerf},
}

func findTag(line string) (signal.Tag, bool) {
	for _, t := range tagMarkers {
		if i := strings.Index(line, t.marker); i >= 0 {
			return signal.Tag{Kind: t.kind, Payload: line[i+len(t.marker):]}, true
		}
	}
	return signal.Tag{}, false
}

func containsAny(line string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// rule is one (predicate, action) pair. For each line the first rule whose
// predicate holds runs its action and the rest are skipped. Later rules rely
// on the section and suppression state kept by earlier ones, so the order of
// rules is part of the behaviour.
type rule struct {
	name  string
	when  func(p *pass, text string) bool
	apply func(p *pass, i int, text string)
}

var rules = []rule{
	{
		name: "section",
		when: func(_ *pass, text string) bool { return containsAny(text, sectionMarkers) },
		apply: func(p *pass, i int, _ string) {
			p.sectionIdx = i
			p.sectionReported = false
			p.suppressed = false
			p.warningsAsErrors = false
		},
	},
	{
		name: "summary",
		when: func(_ *pass, text string) bool { return containsAny(text, summaryMarkers) },
		apply: func(p *pass, _ int, _ string) {
			if !p.relaxed {
				p.suppressed = true
			}
		},
	},
	{
		name: "context",
		when: func(p *pass, _ string) bool { return p.pending > 0 },
		apply: func(p *pass, i int, _ string) {
			p.appendLine(i)
			p.pending--
		},
	},
	{
		name: "success",
		when: func(p *pass, text string) bool { return p.successFor(text) != outcome.None },
		apply: func(p *pass, _ int, text string) {
			p.successCode = p.successFor(text)
		},
	},
	{
		name: "crash",
		when: func(_ *pass, text string) bool { return containsAny(text, crashMarkers) },
		apply: func(p *pass, i int, _ string) { p.crash(i) },
	},
	{
		name: "error",
		when: func(p *pass, text string) bool {
			p.hit = findPattern(text)
			return p.hit != nil
		},
		apply: func(p *pass, i int, _ string) {
			if p.hit.warningsAsErrors {
				p.warningsAsErrors = true
			}
			if p.suppressed {
				return
			}
			p.recordError(i, p.hit.context, p.hit.code)
		},
	},
	{
		name: "warning",
		when: func(_ *pass, text string) bool { return containsAny(text, warningMarkers) },
		apply: func(p *pass, i int, _ string) {
			if p.suppressed {
				return
			}
			if p.warningsAsErrors {
				p.recordError(i, 0, outcome.None)
				return
			}
			p.recordWarning(i)
		},
	},
	{
		name: "tag",
		when: func(_ *pass, text string) bool {
			_, ok := findTag(text)
			return ok
		},
		apply: func(p *pass, i int, text string) {
			if i < p.seen || p.opts.Signals == nil {
				return
			}
			tag, _ := findTag(text)
			p.opts.Signals.Signal(tag)
		},
	},
	{
		name: "report-all",
		when: func(p *pass, text string) bool {
			return p.opts.ReportEverything && strings.TrimSpace(text) != ""
		},
		apply: func(p *pass, i int, _ string) {
			p.anyError = true
			p.appendLine(i)
		},
	},
}
