package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	redB   = color.New(color.FgRed, color.Bold).SprintFunc()
	whiteB = color.New(color.FgWhite, color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

const detailWidth = 70

// DisableColors turns off ANSI output for every formatter in this package
// and for fatih/color users elsewhere in the process.
func DisableColors() { color.NoColor = true }

// EnableColors undoes DisableColors.
func EnableColors() { color.NoColor = false }

func (e *Error) headline() string {
	if e.Message == "" && e.Wrapped != nil {
		return e.Wrapped.Error()
	}
	return e.Message
}

func (e *Error) cause() string {
	if e.Wrapped == nil || e.Message == "" {
		return ""
	}
	return e.Wrapped.Error()
}

// Format renders the error for a terminal: the coded headline, the source
// excerpt when a location is known, then detail, cause, hint and example.
func (e *Error) Format() string {
	var b strings.Builder
	if e.Code != "" {
		fmt.Fprintf(&b, "\n%s %s %s\n\n", redB("ERROR"), whiteB(e.Code+":"), e.headline())
	} else {
		fmt.Fprintf(&b, "\n%s %s\n\n", redB("ERROR:"), e.headline())
	}

	e.writeSource(&b)

	if lines := wrapText(e.Detail, detailWidth); len(lines) > 0 {
		writeIndented(&b, "  ", lines)
		b.WriteByte('\n')
	}
	if c := e.cause(); c != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", gray("Cause: "), c)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", cyan("Hint: "), e.Suggestion)
	}
	if e.Example != "" {
		fmt.Fprintf(&b, "  %s\n", cyan("Example:"))
		writeIndented(&b, "    ", strings.Split(e.Example, "\n"))
		b.WriteByte('\n')
	}
	return b.String()
}

// writeSource prints the location and the captured lines around it, marking
// the offending line and column.
func (e *Error) writeSource(b *strings.Builder) {
	if e.Location == nil {
		return
	}
	fmt.Fprintf(b, "  %s\n\n", cyan(e.Location.String()))
	if len(e.Context) == 0 {
		return
	}

	first := max(e.Location.Line-len(e.Context)/2, 1)
	for i, text := range e.Context {
		n := first + i
		if n != e.Location.Line {
			fmt.Fprintf(b, "    %4d%s%s\n", n, gray(" │ "), text)
			continue
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", red("→ "), n, gray(" │ "), text)
		if e.Location.Column > 0 {
			fmt.Fprintf(b, "       %s%s%s\n", gray("│ "), strings.Repeat(" ", e.Location.Column-1), red("^"))
		}
	}
	b.WriteByte('\n')
}

func writeIndented(b *strings.Builder, indent string, lines []string) {
	for _, line := range lines {
		b.WriteString(indent)
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// FormatCompact returns file:line:col: CODE: message on one line.
func (e *Error) FormatCompact() string {
	if e.Location == nil {
		return e.Error()
	}
	return e.Location.String() + ": " + e.Error()
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Cause      string        `json:"cause,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// FormatJSON returns the error as a single JSON object.
func (e *Error) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.headline(),
		Detail:     e.Detail,
		Cause:      e.cause(),
		Suggestion: e.Suggestion,
	}
	if l := e.Location; l != nil {
		out.Location = &jsonLocation{File: l.File, Line: l.Line, Column: l.Column}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// wrapText breaks text on word boundaries so no line exceeds width, except
// for single words longer than width.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}

// Fprint writes err to w, using Format when err is an *Error.
func Fprint(w io.Writer, err error) {
	if e, ok := err.(*Error); ok {
		io.WriteString(w, e.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", redB("ERROR:"), err.Error())
}

// PrintError prints err to stderr.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}
