package main

import (
	"fmt"
	"os"
)

// ANSI escape codes. Suppressed by --no-color or the NO_COLOR
// convention (https://no-color.org).
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

func colorsDisabled() bool {
	return noColor || os.Getenv("NO_COLOR") != ""
}

func paint(code, text string) string {
	if colorsDisabled() {
		return text
	}
	return code + text + ansiReset
}

// riskPaint renders a risk score colored by severity band: green while
// the score stays mild, yellow once it needs attention, red from the
// red-flag range up.
func riskPaint(score float64) string {
	label := fmt.Sprintf("%.1f", score)
	switch {
	case score >= 7.5:
		return paint(ansiRed, label)
	case score >= 4:
		return paint(ansiYellow, label)
	default:
		return paint(ansiGreen, label)
	}
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(ansiGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(ansiRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(ansiYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

// printStatus writes an aligned "label: value" line, as used by the
// status and analyze commands.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", paint(ansiBold, label+":"), fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(ansiCyan, "→ "+fmt.Sprintf(format, args...)))
}
