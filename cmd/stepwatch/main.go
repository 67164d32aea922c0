// stepwatch - Build step supervision and log classification
//
// Usage:
//
//	stepwatch run [flags] -- <exe> [args...]   Run a step, classify its output
//	stepwatch classify [flags] <log>...        Classify finished step logs
//	stepwatch follow [flags] <log>             Classify a log while it grows
//	stepwatch capture                          Print debug channel messages
//	stepwatch history [-n N]                   Show recent step outcomes
//	stepwatch explain <text>                   Suggest a cause for failure text
//	stepwatch codes                            List outcome codes
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/buildfarm/stepwatch/internal/outcome"
)

// Exit statuses.
const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

// Global flags
var (
	configFlag  string
	outputFlag  string
	jobsFlag    int
	historyN    int
	noHistory   bool
	echoFlag    bool
	stepFlag    string
	kindFlag    string
	dirFlag     string
	logFlag     string
	argsFlag    string
	envFlags    []string
	debugChan   bool
	cookingFlag bool
	publishFlag bool
	reportAll   bool
)

func main() {
	flag.StringVar(&configFlag, "config", "", "Config file (default $STEPWATCH_CONFIG or the user config dir)")
	flag.StringVarP(&outputFlag, "output", "o", "text", "Output format: text, json, yaml")
	flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.String("log-format", "auto", "Log format: auto, text, json")
	flag.String("log-file", "", "Write the process log to this file")
	flag.String("state-dir", "", "State directory for step logs and history")
	flag.String("history-path", "", "History database path")
	flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flag.String("nats-url", "", "Publish step signals to this NATS server")
	flag.String("nats-subject", "", "Subject prefix for published signals")
	flag.Bool("journal", false, "Mirror step log lines to journald")
	flag.Duration("timeout", 0, "Kill a step that runs longer than this (0 = no limit)")
	flag.Duration("stall-timeout", 0, "Kill a step that prints nothing for this long (0 = no limit)")
	flag.Duration("kill-wait", 0, "How long a kill waits for the step to exit")

	flag.StringVar(&stepFlag, "step", "", "Step name for logs, signals and history (default: executable name)")
	flag.StringVarP(&kindFlag, "kind", "k", "", "Step kind reported on failure: compile, link, cook, ...")
	flag.StringVarP(&dirFlag, "dir", "C", "", "Working directory for the step")
	flag.StringVar(&logFlag, "log", "", "Step log path (default: state dir)")
	flag.StringVar(&argsFlag, "args", "", "Raw argument string, used instead of the words after the executable")
	flag.StringArrayVarP(&envFlags, "env", "e", nil, "Add KEY=VALUE to the step environment (can be repeated)")
	flag.BoolVar(&debugChan, "debug-channel", false, "Capture output from the OS debug channel instead of stdout/stderr")
	flag.BoolVar(&echoFlag, "echo", false, "Echo step output to stdout while running")
	flag.BoolVar(&cookingFlag, "cooking", false, "Treat the cooker success marker as success")
	flag.BoolVar(&publishFlag, "publishing", false, "Treat publish completion markers as success")
	flag.BoolVar(&reportAll, "report-all", false, "Report every line and fail the step")
	flag.BoolVar(&noHistory, "no-history", false, "Do not record the outcome in history")
	flag.IntVarP(&jobsFlag, "jobs", "j", 0, "Logs classified in parallel (default: number of CPUs)")
	flag.IntVarP(&historyN, "count", "n", 20, "Number of history entries")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `stepwatch - Build step supervision and log classification

Usage:
  stepwatch run [flags] -- <exe> [args...]   Run a step, classify its output
  stepwatch classify [flags] <log>...        Classify finished step logs
  stepwatch follow [flags] <log>             Classify a log while it grows
  stepwatch capture                          Print debug channel messages
  stepwatch history [-n N]                   Show recent step outcomes
  stepwatch explain <text>                   Suggest a cause for failure text
  stepwatch codes                            List outcome codes

Exit status is 0 for success, 1 for a failed step, 2 for usage or
infrastructure errors.

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(exitUsage)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "run":
		if len(cmdArgs) == 0 {
			fatal("usage: stepwatch run [flags] -- <exe> [args...]")
		}
		os.Exit(cmdRun(cmdArgs))
	case "classify":
		if len(cmdArgs) == 0 {
			fatal("usage: stepwatch classify <log>...")
		}
		os.Exit(cmdClassify(cmdArgs))
	case "follow":
		if len(cmdArgs) != 1 {
			fatal("usage: stepwatch follow <log>")
		}
		os.Exit(cmdFollow(cmdArgs[0]))
	case "capture":
		cmdCapture()
	case "history":
		cmdHistory()
	case "explain":
		if len(cmdArgs) == 0 {
			fatal("usage: stepwatch explain <text>")
		}
		cmdExplain(strings.Join(cmdArgs, " "))
	case "codes":
		for _, c := range outcome.All() {
			fmt.Println(c)
		}
	default:
		fatal("unknown command: %s", cmd)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(exitUsage)
}

// exitStatus maps an outcome to the process exit status.
func exitStatus(o outcome.Outcome) int {
	switch {
	case o.Succeeded():
		return exitSuccess
	case o.Code.IsInfrastructure():
		return exitUsage
	default:
		return exitFailure
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
