// Package completion provides CLI tab-completion for cmdgate.
//
// The binary itself handles completions: when invoked with COMP_LINE set
// (by the shell), it outputs matching completions and exits.
// Works across bash, zsh, and fish with a one-time install.
//
// User-facing output is handled by the caller in main.go.
package completion

import (
	"os"

	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/install"
	"github.com/posener/complete/v2/predict"
)

// Name is the binary name completions are registered under.
const Name = "cmdgate"

var grammars = predict.Set{"gh", "python"}

// command defines the full cmdgate CLI completion tree.
var command = &complete.Command{
	Flags: map[string]complete.Predictor{
		"config":    predict.Files("*.yaml"),
		"log-level": predict.Set{"trace", "debug", "info", "warn", "error"},
		"no-color":  predict.Nothing,
	},
	Sub: map[string]*complete.Command{
		"hook": {Flags: map[string]complete.Predictor{
			"event": predict.Set{"pre-tool-use", "permission-request"},
		}},
		"check": {Flags: map[string]complete.Predictor{
			"json":    predict.Nothing,
			"explain": predict.Nothing,
		}},
		"scan": {Flags: map[string]complete.Predictor{"grammar": grammars}},
		"serve": {Flags: map[string]complete.Predictor{
			"listen":   predict.Nothing,
			"no-watch": predict.Nothing,
		}},
		"lint-rules": {Flags: map[string]complete.Predictor{"info": predict.Nothing}, Args: predict.Files("*.yaml")},
		"list-rules": {Flags: map[string]complete.Predictor{
			"json":    predict.Nothing,
			"grammar": grammars,
		}},
		"audit": {Flags: map[string]complete.Predictor{
			"n":    predict.Nothing,
			"json": predict.Nothing,
		}},
		"completion": {Args: predict.Set{"install", "uninstall"}},
		"version":    {Flags: map[string]complete.Predictor{"json": predict.Nothing}},
		"help":       {},
	},
}

// Subcommands returns the top-level subcommand names.
func Subcommands() []string {
	names := make([]string, 0, len(command.Sub))
	for name := range command.Sub {
		names = append(names, name)
	}
	return names
}

// Run checks if the binary was invoked for shell completion.
// If COMP_LINE is set, it outputs completions and returns true.
// Otherwise it returns false and the program continues normally.
func Run() bool {
	if os.Getenv("COMP_LINE") != "" || os.Getenv("COMP_INSTALL") != "" || os.Getenv("COMP_UNINSTALL") != "" {
		command.Complete(Name)
		return true
	}
	return false
}

// Install sets up shell completion for the detected shells.
func Install() error {
	return install.Install(Name)
}

// Uninstall removes shell completion for the detected shells.
func Uninstall() error {
	return install.Uninstall(Name)
}

// IsInstalled reports whether shell completion is already set up.
func IsInstalled() bool {
	return install.IsInstalled(Name)
}
