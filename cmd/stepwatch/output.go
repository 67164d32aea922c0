package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/buildfarm/stepwatch/internal/classifier"
	"github.com/buildfarm/stepwatch/internal/logging"
	"github.com/buildfarm/stepwatch/internal/outcome"
)

// report is what run, classify and follow print for one step or log.
type report struct {
	ID        string       `json:"id,omitempty" yaml:"id,omitempty"`
	Step      string       `json:"step,omitempty" yaml:"step,omitempty"`
	Log       string       `json:"log,omitempty" yaml:"log,omitempty"`
	Code      outcome.Code `json:"code" yaml:"code"`
	Text      string       `json:"text" yaml:"text"`
	ExitCode  *int         `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Duration  string       `json:"duration,omitempty" yaml:"duration,omitempty"`
	Rescanned bool         `json:"rescanned,omitempty" yaml:"rescanned,omitempty"`
	Hint      string       `json:"hint,omitempty" yaml:"hint,omitempty"`
}

func newReport(o outcome.Outcome, r classifier.Result) report {
	rep := report{Code: o.Code, Text: o.Text, Rescanned: r.Rescanned}
	if !o.Succeeded() {
		rep.Hint = classifier.Explain(o.Text)
	}
	return rep
}

func (r report) outcome() outcome.Outcome {
	return outcome.Outcome{Code: r.Code, Text: r.Text}
}

// printReports writes reports in the --output format. JSON and YAML print a
// single object for one report and a list otherwise.
func printReports(w io.Writer, reports []report) {
	var v any = reports
	if len(reports) == 1 {
		v = reports[0]
	}
	if encode(w, v) {
		return
	}
	color := w == os.Stdout && logging.IsTerminal(os.Stdout)
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		printText(w, r, color)
	}
}

// encode writes v as JSON or YAML and reports whether it did; text output
// is left to the caller.
func encode(w io.Writer, v any) bool {
	switch outputFlag {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fatal("encoding json: %v", err)
		}
		return true
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			fatal("encoding yaml: %v", err)
		}
		_ = enc.Close()
		return true
	case "text", "":
		return false
	default:
		fatal("unknown output format: %s", outputFlag)
		return false
	}
}

const (
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

func printText(w io.Writer, r report, color bool) {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + ansiReset
	}

	name := r.Step
	if name == "" {
		name = r.Log
	}
	status := paint(ansiRed, string(r.Code))
	if r.outcome().Succeeded() {
		status = paint(ansiGreen, string(r.Code))
	}

	var meta []string
	if r.ExitCode != nil {
		meta = append(meta, fmt.Sprintf("exit %d", *r.ExitCode))
	}
	if r.Duration != "" {
		meta = append(meta, r.Duration)
	}
	if r.Rescanned {
		meta = append(meta, "rescanned")
	}
	line := status
	if name != "" {
		line = name + ": " + status
	}
	if len(meta) > 0 {
		line += paint(ansiDim, " ("+strings.Join(meta, ", ")+")")
	}
	fmt.Fprintln(w, line)

	if !r.outcome().Succeeded() && r.Text != "" {
		for _, l := range strings.Split(r.Text, "\n") {
			fmt.Fprintln(w, "  "+l)
		}
	}
	if r.Hint != "" {
		fmt.Fprintln(w, paint(ansiDim, "hint: "+r.Hint))
	}
	if r.Log != "" && r.Step != "" {
		fmt.Fprintln(w, paint(ansiDim, "log: "+r.Log))
	}
}
