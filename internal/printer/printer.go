// Package printer formats sssctl output: colored status lines, aligned
// tables, and titled errors on stderr.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

func init() {
	// Disable with NO_COLOR.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Stdout and Stderr are swapped out by tests.
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr

	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
)

// Success prints msg in green with a checkmark.
func Success(format string, a ...any) {
	green.Fprintf(Stdout, "✓ %s\n", fmt.Sprintf(format, a...))
}

func Warning(format string, a ...any) {
	yellow.Fprintf(Stdout, "! %s\n", fmt.Sprintf(format, a...))
}

func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout, format, a...)
}

// Error prints a titled error with an optional hint to Stderr and returns
// a plain error for cobra, which is configured not to print it again.
func Error(title, explanation string, hints ...string) error {
	red.Fprintf(Stderr, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(Stderr, "\n%s\n", explanation)
	}
	if len(hints) > 0 {
		fmt.Fprintln(Stderr)
		for _, h := range hints {
			fmt.Fprintf(Stderr, "  %s\n", h)
		}
	}
	return fmt.Errorf("%s", title)
}

// Table writes rows under an upper-cased header, columns aligned.
func Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(headers, "\t")))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	_ = tw.Flush()
}

// Section prints a bold heading followed by key/value lines in order.
func Section(title string, kv ...string) {
	cyan.Fprintln(Stdout, title)
	tw := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(tw, "  %s\t%s\n", kv[i], kv[i+1])
	}
	_ = tw.Flush()
}
