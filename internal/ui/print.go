package ui

import (
	"fmt"
	"os"

	"github.com/jj-spr/jj-spr/internal/jj"
)

// Output prints a progress line with an emoji marker, the way every step of
// a workflow reports itself.
func Output(emoji, msg string) {
	fmt.Fprintf(os.Stdout, "%s %s\n", emoji, msg)
}

// Outputf prints a formatted progress line with an emoji marker.
func Outputf(emoji, format string, args ...interface{}) {
	Output(emoji, fmt.Sprintf(format, args...))
}

// CommitTitle prints the short id and title of the commit being operated on.
func CommitTitle(commit *jj.PreparedCommit) {
	fmt.Fprintf(os.Stdout, "%s %s\n", DimStyle.Render(commit.ShortID), BoldStyle.Render(commit.Title()))
}

// Success prints a success message with a checkmark icon
func Success(msg string) {
	fmt.Fprintln(os.Stdout, SuccessStyle.Render("✓ "+msg))
}

// Successf prints a formatted success message with a checkmark icon
func Successf(format string, args ...interface{}) {
	Success(fmt.Sprintf(format, args...))
}

// Error prints an error message with a stop icon to stderr
func Error(msg string) {
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("🛑 "+msg))
}

// Errorf prints a formatted error message with a stop icon
func Errorf(format string, args ...interface{}) {
	Error(fmt.Sprintf(format, args...))
}

// Warning prints a warning message with a warning icon
func Warning(msg string) {
	fmt.Fprintln(os.Stdout, WarningStyle.Render("⚠ "+msg))
}

// Info prints an info message with an info icon
func Info(msg string) {
	fmt.Fprintln(os.Stdout, InfoStyle.Render("ℹ "+msg))
}

// Print prints a plain message (no styling)
func Print(msg string) {
	fmt.Fprintln(os.Stdout, msg)
}

// Printf prints a formatted plain message (no styling)
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}
