// Package outcome defines the closed set of codes a build step can conclude
// with, and the Outcome value handed back to the orchestrator.
package outcome

import (
	"fmt"
	"slices"
)

// Code describes how a step concluded.
type Code string

const (
	// None is the pre-seeded slot value. It is never a final result.
	None Code = "none"

	Success        Code = "success"
	CookingSuccess Code = "cooking-success"
	PublishSuccess Code = "publish-success"

	// Failed is the generic failure code.
	Failed Code = "failed"

	// Step kinds. A caller seeds one of these so that a failure is reported
	// against the kind of step that ran.
	Compile     Code = "compile"
	Link        Code = "link"
	Cook        Code = "cook"
	Publish     Code = "publish"
	ShaderBuild Code = "shader-build"
	Script      Code = "script"
	Commandlet  Code = "commandlet"
	Sync        Code = "sync"
	Package     Code = "package"

	NetworkVanished Code = "network-vanished"

	CriticalError Code = "critical-error"

	// Infrastructure failures.
	LogOpenFailed Code = "log-open-failed"
	LaunchFailed  Code = "launch-failed"
	Killed        Code = "killed"
	TimedOut      Code = "timed-out"
	Crashed       Code = "crashed"
)

// SucceededText is the result text of a step with no error excerpt.
const SucceededText = "Succeeded"

var (
	successCodes = []Code{Success, CookingSuccess, PublishSuccess}
	stepCodes    = []Code{Compile, Link, Cook, Publish, ShaderBuild, Script, Commandlet, Sync, Package}
	infraCodes   = []Code{LogOpenFailed, LaunchFailed, Killed, TimedOut, Crashed}
	allCodes     = slices.Concat(
		[]Code{None},
		successCodes,
		[]Code{Failed},
		stepCodes,
		[]Code{NetworkVanished, CriticalError},
		infraCodes,
	)
)

// All returns every defined code in declaration order.
func All() []Code {
	return slices.Clone(allCodes)
}

// Valid reports whether c is one of the defined codes.
func (c Code) Valid() bool {
	return slices.Contains(allCodes, c)
}

// IsSuccess reports whether c represents a successful step.
func (c Code) IsSuccess() bool {
	return slices.Contains(successCodes, c)
}

// IsStep reports whether c names a step kind.
func (c Code) IsStep() bool {
	return slices.Contains(stepCodes, c)
}

// IsInfrastructure reports whether c is reserved for failures of the
// execution layer itself rather than of the tool that ran.
func (c Code) IsInfrastructure() bool {
	return slices.Contains(infraCodes, c)
}

// IsCritical reports whether retrying in the same environment is unlikely
// to help.
func (c Code) IsCritical() bool {
	return c == CriticalError || c == Crashed
}

func (c Code) String() string {
	return string(c)
}

// ParseCode converts s into a Code, rejecting unknown values.
func ParseCode(s string) (Code, error) {
	c := Code(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown outcome code %q", s)
	}
	return c, nil
}

// Outcome is the unit returned to the orchestrator for one step.
type Outcome struct {
	Code Code   `json:"code" yaml:"code"`
	Text string `json:"text" yaml:"text"`
}

// Succeeded reports whether the outcome is a success code.
func (o Outcome) Succeeded() bool {
	return o.Code.IsSuccess()
}

// Infrastructure builds an outcome for an execution-layer failure.
func Infrastructure(code Code, format string, args ...any) Outcome {
	return Outcome{Code: code, Text: fmt.Sprintf(format, args...)}
}
