package classifier

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildfarm/stepwatch/internal/outcome"
	"github.com/buildfarm/stepwatch/internal/signal"
)

func excerptLines(r Result) []string {
	if r.Excerpt == "" {
		return nil
	}
	return strings.Split(r.Excerpt, "\n")
}

func TestEmptyLogSucceeds(t *testing.T) {
	r := ClassifyLines(nil, Options{})
	assert.Equal(t, outcome.Success, r.Outcome.Code)
	assert.Equal(t, "Succeeded", r.Outcome.Text)
	assert.Empty(t, r.Excerpt)
	assert.False(t, r.AnyError)
}

func TestSectionErrorThenSummary(t *testing.T) {
	lines := []string{
		"------ Project A ------",
		"cl : Command line error D8021",
		"Warning/Error Summary",
	}
	r := ClassifyLines(lines, Options{})

	assert.Equal(t, outcome.Failed, r.Outcome.Code)
	assert.True(t, r.AnyError)
	assert.Equal(t, lines[:2], excerptLines(r))
	assert.Equal(t, r.Excerpt, r.Outcome.Text)
}

func TestCookingSuccessMarker(t *testing.T) {
	r := ClassifyLines([]string{"Success - 0 error(s)"}, Options{CheckCooking: true})
	assert.Equal(t, outcome.CookingSuccess, r.Outcome.Code)
	assert.Equal(t, "Succeeded", r.Outcome.Text)

	r = ClassifyLines([]string{"Success - 0 error(s)"}, Options{})
	assert.Equal(t, outcome.Success, r.Outcome.Code, "marker ignored when the check is off")
}

func TestPublishSuccessMarker(t *testing.T) {
	r := ClassifyLines([]string{"[SYNCING WITH REMOTE FOLDER]", "CookerSync completed"}, Options{CheckPublishing: true})
	assert.Equal(t, outcome.PublishSuccess, r.Outcome.Code)
}

func TestWarningIsBracketedAndNotAnError(t *testing.T) {
	lines := []string{"normal line", "): warning C4100: unused", "next line", "next next line"}
	r := ClassifyLines(lines, Options{})

	assert.False(t, r.AnyError)
	assert.Equal(t, outcome.Success, r.Outcome.Code)
	assert.Equal(t, "Succeeded", r.Outcome.Text)
	assert.Equal(t, []string{WarningBegin, "): warning C4100: unused", WarningEnd}, excerptLines(r))
}

func TestMissingLogNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")
	r := ClassifyFile(path, Options{})

	assert.Equal(t, outcome.LogOpenFailed, r.Outcome.Code)
	assert.Contains(t, r.Outcome.Text, path)
}

func TestClassifyFileStripsStamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "step.log")
	content := "10:00:00: Building\n10:00:01: Foo.cpp(12): error C2065: 'x': undeclared identifier\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r := ClassifyFile(path, Options{Seed: outcome.Compile})
	assert.Equal(t, outcome.Compile, r.Outcome.Code)
	assert.Equal(t, "Foo.cpp(12): error C2065: 'x': undeclared identifier", r.Excerpt)
}

func TestStampedAndLiveLinesGiveSameExcerpt(t *testing.T) {
	live := []string{
		"------ Project A ------",
		"a.cpp(1): error C2065: 'x': undeclared identifier",
		"link.exe : fatal error LNK1181",
	}
	stamped := make([]string, len(live))
	for i, l := range live {
		stamped[i] = fmt.Sprintf("08:15:%02d: %s", i, l)
	}

	fromLog := ClassifyLines(stamped, Options{Seed: outcome.Compile})
	s := NewStream(Options{Seed: outcome.Compile})
	for _, l := range live {
		s.Feed(l)
	}
	fromRun := s.Finish()

	assert.Equal(t, fromLog.Outcome, fromRun.Outcome)
	assert.Equal(t, fromLog.Excerpt, fromRun.Excerpt)
	assert.NotContains(t, fromLog.Excerpt, "08:15:")
}

func TestErrorLinesAppearVerbatim(t *testing.T) {
	errs := []string{
		"Foo.cpp(12): error C2065: 'x': undeclared identifier",
		"Bar.obj : error LNK2019: unresolved external symbol",
		"src/a.c:3:5: error: expected ';'",
		"LogCook: Error: Package /Game/Maps/Arena is corrupt",
		"Error: something broke",
	}
	for _, line := range errs {
		r := ClassifyLines([]string{"preamble", line}, Options{})
		assert.True(t, r.AnyError, line)
		assert.Contains(t, excerptLines(r), line)
	}
}

func TestSummarySuppressesUntilNextSection(t *testing.T) {
	lines := []string{
		"------ Project A ------",
		"a.cpp(1): error C2065: first",
		"Warning/Error Summary",
		"a.cpp(1): error C2065: first",
		"------ Project B ------",
		"b.cpp(9): error C2143: second",
	}
	r := ClassifyLines(lines, Options{})

	assert.Equal(t, []string{lines[0], lines[1], lines[4], lines[5]}, excerptLines(r))
}

func TestSeedBecomesFailureCode(t *testing.T) {
	lines := []string{"Bar.obj : error LNK2019: unresolved external symbol"}
	assert.Equal(t, outcome.Link, ClassifyLines(lines, Options{Seed: outcome.Link}).Outcome.Code)
	assert.Equal(t, outcome.Failed, ClassifyLines(lines, Options{Seed: outcome.None}).Outcome.Code)
}

func TestSpecificCodeBeatsSeed(t *testing.T) {
	lines := []string{"copy failed => NETWORK share lost", "Error: copy aborted"}
	r := ClassifyLines(lines, Options{Seed: outcome.Publish})
	assert.Equal(t, outcome.NetworkVanished, r.Outcome.Code)
}

func TestSuccessMarkerPreemptsGenericFailure(t *testing.T) {
	lines := []string{"Foo.cpp(1): error C2065: 'x': undeclared identifier", "Success - 0 error(s)"}
	r := ClassifyLines(lines, Options{CheckCooking: true})
	assert.True(t, r.AnyError)
	assert.Equal(t, outcome.CookingSuccess, r.Outcome.Code)
}

func TestContextLinesFollowTrigger(t *testing.T) {
	lines := []string{
		"Unhandled Exception: System.NullReferenceException",
		"   at Tool.Main()",
		"   at Tool.Run()",
	}
	r := ClassifyLines(lines, Options{})
	assert.Equal(t, lines, excerptLines(r))
}

func TestContextLinesAppendedWhileSuppressed(t *testing.T) {
	lines := []string{
		"Unhandled Exception: System.IO.IOException",
		"Warning/Error Summary",
		"   at Tool.Copy()",
		"Foo.cpp(1): error C2065: suppressed",
	}
	r := ClassifyLines(lines, Options{})

	got := excerptLines(r)
	assert.Contains(t, got, "   at Tool.Copy()")
	// Still inside the exception's context window, so it is kept as context.
	assert.Contains(t, got, "Foo.cpp(1): error C2065: suppressed")
	assert.NotContains(t, got, "Warning/Error Summary")
}

func TestSuppressedErrorsDoNotCount(t *testing.T) {
	lines := []string{"Warning/Error Summary", "Foo.cpp(1): error C2065: old"}
	r := ClassifyLines(lines, Options{})
	assert.False(t, r.AnyError)
	assert.Equal(t, outcome.Success, r.Outcome.Code)
}

func TestCrashMarkerRescansOnce(t *testing.T) {
	lines := []string{
		"a.cpp(3): error C2001: first",
		"Warning/Error Summary",
		"b.cpp(4): error C2002: hidden by summary",
		"=== Critical error: ===",
		"Fatal error: [File:Engine.cpp] [Line: 10]",
		"appError called: second crash",
	}
	r := ClassifyLines(lines, Options{})

	assert.Equal(t, outcome.CriticalError, r.Outcome.Code)
	assert.True(t, r.Rescanned)
	got := excerptLines(r)
	assert.Contains(t, got, lines[2], "rescan re-adds errors suppressed on the first pass")
	assert.Contains(t, got, lines[4])
	for _, l := range lines {
		n := 0
		for _, g := range got {
			if g == l {
				n++
			}
		}
		assert.LessOrEqual(t, n, 1, "line %q repeated in excerpt", l)
	}
}

func TestCrashMarkerAloneIsCritical(t *testing.T) {
	r := ClassifyLines([]string{"appError called: Assertion failed", "stack frame 1"}, Options{CheckCooking: true})
	assert.Equal(t, outcome.CriticalError, r.Outcome.Code)
	assert.True(t, r.AnyError)
	assert.Contains(t, excerptLines(r), "stack frame 1")
}

func TestTagsForwardedEvenWhenSuppressed(t *testing.T) {
	rec := &signal.Recorder{}
	lines := []string{
		"[STATUS] Compiling",
		"Warning/Error Summary",
		"12:00:00: [PERFCOUNTER] Cook Seconds 12",
		"[WARNING] disk nearly full",
	}
	r := ClassifyLines(lines, Options{Signals: rec})

	assert.False(t, r.AnyError)
	assert.Equal(t, []signal.Tag{
		{Kind: signal.KindStatus, Payload: "Compiling"},
		{Kind: signal.KindPerf, Payload: "Cook Seconds 12"},
		{Kind: signal.KindWarning, Payload: "disk nearly full"},
	}, rec.Tags())
}

func TestTagsNotRepeatedOnRescan(t *testing.T) {
	rec := &signal.Recorder{}
	lines := []string{"[STATUS] one", "[PERFCOUNTER] Maps 3", "=== Critical error: ==="}
	ClassifyLines(lines, Options{Signals: rec})

	assert.Equal(t, []signal.Tag{
		{Kind: signal.KindStatus, Payload: "one"},
		{Kind: signal.KindPerf, Payload: "Maps 3"},
	}, rec.Tags())
}

func TestWarningsAsErrors(t *testing.T) {
	lines := []string{
		"a.cpp(1): error C2220: the following warning is treated as an error",
		"a.cpp(1): warning C4100: unused parameter",
	}
	r := ClassifyLines(lines, Options{})
	assert.True(t, r.AnyError)
	assert.Equal(t, lines, excerptLines(r))
}

func TestWarningsAsErrorsEndsWithSection(t *testing.T) {
	lines := []string{
		"------ Build started: Project: Strict ------",
		"a.cpp(1): error C2220: the following warning is treated as an error",
		"------ Build started: Project: Lenient ------",
		"b.cpp(7): warning C4100: unused parameter",
	}
	r := ClassifyLines(lines, Options{})
	assert.True(t, r.AnyError)
	assert.Equal(t, []string{
		lines[0],
		lines[1],
		lines[2],
		WarningBegin, lines[3], WarningEnd,
	}, excerptLines(r))
}

func TestReportEverything(t *testing.T) {
	lines := []string{"ran step", "", "   ", "all done"}
	r := ClassifyLines(lines, Options{ReportEverything: true, Seed: outcome.Script})

	assert.True(t, r.AnyError)
	assert.Equal(t, outcome.Script, r.Outcome.Code)
	assert.Equal(t, []string{"ran step", "all done"}, excerptLines(r))
}

func TestStreamMatchesBatch(t *testing.T) {
	lines := []string{
		"------ Build started: Project: Core ------",
		"x.cpp(1): error C2001: boom",
		"Warning/Error Summary",
		"y.cpp(2): error C2002: later",
		"appError called: crash",
		"frame 0",
	}
	s := NewStream(Options{})
	for _, l := range lines {
		s.Feed(l)
	}
	assert.Equal(t, ClassifyLines(lines, Options{}), s.Finish())
	assert.Equal(t, ClassifyLines(lines, Options{}), Classify(slices.Values(lines), Options{}))
}

func TestExplain(t *testing.T) {
	assert.Contains(t, Explain("fatal error C1085: Cannot write compiler generated file: There is not enough space on the disk"), "disk space")
	assert.Contains(t, Explain("LINK : fatal error LNK1201: error writing to program database"), "program database")
	assert.Contains(t, Explain("copy => NETWORK error"), "network share")
	assert.Empty(t, Explain("all good"))
}
