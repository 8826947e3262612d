package tui

import (
	"fmt"
	"io"
	"os"
)

// Output streams. Tests swap them.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// PrintSuccess prints a styled success message with the [cmdgate] prefix.
func PrintSuccess(msg string) {
	if IsPlainMode() {
		fmt.Fprintf(Stdout, "[cmdgate] OK: %s\n", msg)
		return
	}
	fmt.Fprintf(Stdout, "%s %s %s\n", Prefix(), StyleSuccess.Render(IconCheck), msg)
}

// PrintError prints a styled error message with the [cmdgate] prefix.
func PrintError(msg string) {
	if IsPlainMode() {
		fmt.Fprintf(Stderr, "[cmdgate] ERROR: %s\n", msg)
		return
	}
	fmt.Fprintf(Stderr, "%s %s %s\n", Prefix(), StyleError.Render(IconCross), msg)
}

// PrintWarning prints a styled warning message with the [cmdgate] prefix.
func PrintWarning(msg string) {
	if IsPlainMode() {
		fmt.Fprintf(Stdout, "[cmdgate] WARNING: %s\n", msg)
		return
	}
	fmt.Fprintf(Stdout, "%s %s %s\n", Prefix(), StyleWarning.Render(IconWarning), msg)
}

// PrintInfo prints a styled info message with the [cmdgate] prefix.
func PrintInfo(msg string) {
	if IsPlainMode() {
		fmt.Fprintf(Stdout, "[cmdgate] %s\n", msg)
		return
	}
	fmt.Fprintf(Stdout, "%s %s %s\n", Prefix(), StyleInfo.Render(IconInfo), msg)
}
