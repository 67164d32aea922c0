package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"runtime"
	"slices"
	"syscall"

	"github.com/sourcegraph/conc/pool"

	"github.com/buildfarm/stepwatch/internal/classifier"
	"github.com/buildfarm/stepwatch/internal/outcome"
	"github.com/buildfarm/stepwatch/internal/steplog"
)

// seedFromFlags returns the step kind named by --kind, or outcome.None.
func seedFromFlags() outcome.Code {
	if kindFlag == "" {
		return outcome.None
	}
	c, err := outcome.ParseCode(kindFlag)
	if err != nil || !c.IsStep() {
		fatal("--kind must be a step kind, got %q", kindFlag)
	}
	return c
}

func classifyOptions(a *app, step string, seed outcome.Code) classifier.Options {
	return classifier.Options{
		ReportEverything: reportAll,
		CheckCooking:     cookingFlag,
		CheckPublishing:  publishFlag,
		Seed:             seed,
		Signals:          a.sinks(step),
	}
}

type indexedReport struct {
	i   int
	rep report
}

// cmdClassify classifies finished logs, one pass per file in parallel. The
// exit status is the worst of the individual statuses.
func cmdClassify(paths []string) int {
	a := setup(true)
	defer a.close()

	jobs := jobsFlag
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	seed := seedFromFlags()
	p := pool.NewWithResults[indexedReport]().WithMaxGoroutines(jobs)
	for i, path := range paths {
		p.Go(func() indexedReport {
			res := classifier.ClassifyFile(path, classifyOptions(a, path, seed))
			a.recordOutcome(res.Outcome)
			rep := newReport(res.Outcome, res)
			rep.Log = path
			return indexedReport{i: i, rep: rep}
		})
	}
	results := p.Wait()
	slices.SortFunc(results, func(x, y indexedReport) int { return x.i - y.i })

	reports := make([]report, len(results))
	status := exitSuccess
	for i, r := range results {
		reports[i] = r.rep
		status = max(status, exitStatus(r.rep.outcome()))
	}
	printReports(os.Stdout, reports)
	return status
}

// cmdFollow classifies a log while another process writes it, until the
// log is removed or the user interrupts.
func cmdFollow(path string) int {
	a := setup(true)
	defer a.close()

	fl, err := steplog.NewFollower(path)
	if err != nil {
		fatal("%v", err)
	}
	defer fl.Close()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream := classifier.NewStream(classifyOptions(a, path, seedFromFlags()))
	for line := range fl.Lines(ctx) {
		if echoFlag {
			fmt.Println(line)
		}
		stream.Feed(line)
	}
	if err := fl.Err(); err != nil {
		a.logger.Warn("following log", "path", path, "error", err)
	}

	res := stream.Finish()
	a.recordOutcome(res.Outcome)
	rep := newReport(res.Outcome, res)
	rep.Log = path
	printReports(os.Stdout, []report{rep})
	return exitStatus(res.Outcome)
}

func cmdExplain(text string) {
	hint := classifier.Explain(text)
	if hint == "" {
		fmt.Println("no known cause")
		return
	}
	fmt.Println(hint)
}
