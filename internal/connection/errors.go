package connection

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// Problem is one schema violation inside a connection document.
type Problem struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (p Problem) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("%d:%d: %s: %s", p.Line, p.Column, p.Path, p.Reason)
	}
	return p.Path + ": " + p.Reason
}

// DocumentError lists every problem found in one connection document.
type DocumentError struct {
	File     string
	Problems []Problem
}

func (e *DocumentError) Error() string {
	if len(e.Problems) == 0 {
		return e.File + ": invalid connection"
	}
	msg := e.File + ":" + e.Problems[0].String()
	if n := len(e.Problems) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

// documentError converts a CUE evaluation error into a DocumentError for
// file. Errors CUE cannot split are wrapped as a single problem.
func documentError(file string, err error) error {
	if err == nil {
		return nil
	}
	de := &DocumentError{File: file}
	for _, ce := range cueerrors.Errors(err) {
		p := Problem{Path: strings.Join(ce.Path(), "."), Reason: ce.Error()}
		if format, args := ce.Msg(); format != "" {
			p.Reason = fmt.Sprintf(format, args...)
		}
		if p.Path == "" {
			p.Path = "(document)"
		}
		if pos := cueerrors.Positions(ce); len(pos) > 0 && pos[0].IsValid() {
			p.Line, p.Column = pos[0].Line(), pos[0].Column()
		}
		de.Problems = append(de.Problems, p)
	}
	if len(de.Problems) == 0 {
		de.Problems = []Problem{{Path: "(document)", Reason: err.Error()}}
	}
	return de
}
