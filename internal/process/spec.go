package process

import (
	"os"
	"strings"
)

// DefaultElevationCandidates are the su locations checked when a spec asks to
// run as root.
var DefaultElevationCandidates = []string{
	"/system/xbin/su",
	"/system/bin/su",
}

// keepaliveFlag introduces the keepalive socket name on the child's command line.
const keepaliveFlag = "-s"

// Spec describes how to launch the supervised process.
type Spec struct {
	// Dir is the working directory of the process.
	Dir string `json:"dir"`

	// Exec is the executable that runs the script, e.g. an interpreter.
	// A bare name is looked up in PATH; a relative path is taken from Dir.
	Exec string `json:"exec"`

	// Script is the program passed to Exec. It is handed over as given.
	Script string `json:"script"`

	// Args are extra arguments. The keepalive flag is appended to them.
	Args []string `json:"args,omitempty"`

	// AsRoot requests launching through a privilege-elevation helper.
	AsRoot bool `json:"as_root"`

	// Env holds additional KEY=VALUE pairs appended to the inherited environment.
	Env []string `json:"env,omitempty"`
}

// Validate checks that the spec can be launched.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Exec) == "" {
		return ErrMissingExecutable
	}
	return nil
}

// ArgsString joins the user arguments and the keepalive flag with single spaces.
func ArgsString(args []string, keepaliveName string) string {
	all := make([]string, 0, len(args)+2)
	all = append(all, args...)
	all = append(all, keepaliveFlag, keepaliveName)
	return strings.Join(all, " ")
}

// ResolveElevation returns the elevation helper to use from candidates.
// Every candidate is checked and the last one that exists wins. An empty
// result means no helper is installed.
func ResolveElevation(candidates []string) string {
	found := ""
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			found = c
		}
	}
	return found
}

// CommandLine builds the argv for spec. Exec and Script are used verbatim.
//
// Direct launches pass two positional arguments to Exec: the argument string
// as a single value, then the script. Elevated launches hand the helper one
// command string that changes into the working directory and runs
// "exec script args". Neither form quotes the argument string.
func CommandLine(spec Spec, elevation, keepaliveName string) []string {
	args := ArgsString(spec.Args, keepaliveName)

	if spec.AsRoot && elevation != "" {
		inner := "cd " + spec.Dir + " && " + spec.Exec + " " + spec.Script + " " + args
		return []string{elevation, "-c", inner}
	}

	argv := []string{spec.Exec, args}
	if spec.Script != "" {
		argv = append(argv, spec.Script)
	}
	return argv
}
