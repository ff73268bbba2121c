package project

import (
	"strings"

	"github.com/wippyai/gpr-bridge/errors"
)

// Mode selects which source files SourceFiles lists.
type Mode int

const (
	// ModeDefault lets the library decide; it lists the whole project tree.
	ModeDefault Mode = iota
	// ModeRootProject lists the root project's own sources.
	ModeRootProject
	// ModeWholeProject lists the sources of every project in the tree.
	ModeWholeProject
	// ModeWholeProjectWithRuntime adds the runtime's sources.
	ModeWholeProjectWithRuntime
)

var modeNames = map[Mode]string{
	ModeDefault:                 "default",
	ModeRootProject:             "root",
	ModeWholeProject:            "whole",
	ModeWholeProjectWithRuntime: "runtime",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMode accepts the names printed by String.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeDefault, errors.InvalidInput(errors.PhaseConfig, "unknown source files mode "+s)
}
