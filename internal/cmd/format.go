package cmd

import (
	"github.com/fatih/color"
)

// Terminal colours. fatih/color disables them when stdout is not a TTY, so
// piped output and tests see plain text.
var (
	okMark    = color.New(color.FgGreen).Sprint("✓")
	failMark  = color.New(color.FgRed).Sprint("✗")
	warnMark  = color.New(color.FgYellow).Sprint("⚠")
	critical  = color.New(color.FgRed, color.Bold).SprintFunc()
	warning   = color.New(color.FgYellow).SprintFunc()
	dim       = color.New(color.FgHiBlack).SprintFunc()
	highlight = color.New(color.FgCyan).SprintFunc()
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
