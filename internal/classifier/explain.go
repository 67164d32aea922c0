package classifier

import "strings"

var hints = []struct {
	needles []string
	hint    string
}{
	{
		[]string{"There is not enough space on the disk", "No space left on device", "C1085"},
		"The build host ran out of disk space. Free space on the output drive and retry.",
	},
	{
		[]string{"LNK1201", "C1041", "error writing to program database"},
		"A program database is locked, usually by a lingering compiler or linker process. Kill it and retry.",
	},
	{
		[]string{"LNK1104"},
		"The linker could not open a file. Another process probably still holds it open.",
	},
	{
		[]string{"Internal Linker Exception:", "LNK1103"},
		"The linker crashed. This is usually transient; retry the step.",
	},
	{
		[]string{"Fatal Error: Failed to initiate build"},
		"The distributed build coordinator could not be reached. Retry, or build locally.",
	},
	{
		[]string{"SDK not found", "Could not find platform SDK"},
		"A platform SDK is missing or not registered on this build host.",
	},
	{
		[]string{"=> NETWORK ", "network name is no longer available", "The network path was not found", "unexpected network error"},
		"A network share went away during the step. Check the file server and retry.",
	},
	{
		[]string{"Out of memory", "Ran out of memory", "C1060", "std::bad_alloc"},
		"The tool ran out of memory. Reduce parallelism or move the step to a larger host.",
	},
	{
		[]string{"P4PASSWD", "can't clobber writable file"},
		"Source control refused the operation. Check the build account's credentials and workspace.",
	},
	{
		[]string{"is not recognized as an internal or external command"},
		"A tool the step calls is not installed or not on PATH.",
	},
	{
		[]string{"=== Critical error: ===", "appError called:"},
		"The tool crashed. Retrying on the same host is unlikely to help; inspect the call stack.",
	},
}

// Explain returns a one-line hint for well known failure text, or "" when
// nothing in text is recognized. The first matching hint wins.
func Explain(text string) string {
	for _, h := range hints {
		for _, n := range h.needles {
			if strings.Contains(text, n) {
				return h.hint
			}
		}
	}
	return ""
}
