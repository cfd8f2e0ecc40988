// Package smtp provides the wire-level pieces of the smtpvoid protocol:
// line framing, command parsing, reply texts and the envelope state.
package smtp

import (
	"bytes"
	"strings"
)

// Command name constants
const (
	CmdEHLO = "EHLO"
	CmdHELO = "HELO"
	CmdMAIL = "MAIL"
	CmdRCPT = "RCPT"
	CmdDATA = "DATA"
	CmdRSET = "RSET"
	CmdNOOP = "NOOP"
	CmdQUIT = "QUIT"
	CmdVRFY = "VRFY"
)

const (
	// mailPrefix must open the MAIL parameter, leading space included.
	mailPrefix = " FROM:"
	// rcptPrefix must open the RCPT parameter, leading space included.
	rcptPrefix = " TO:"
)

var knownCommands = map[string]bool{
	CmdEHLO: true,
	CmdHELO: true,
	CmdMAIL: true,
	CmdRCPT: true,
	CmdDATA: true,
	CmdRSET: true,
	CmdNOOP: true,
	CmdQUIT: true,
	CmdVRFY: true,
}

// Command is one parsed protocol line.
type Command struct {
	// Verb is the command token. It is never case-folded by ParseCommand.
	Verb string
	// Param is everything from the first space onwards, the space included.
	// It is empty when the line has no space.
	Param string
}

// ParseCommand splits a terminator-stripped line at its first space.
// Whitespace around the verb is trimmed; the parameter is kept verbatim.
func ParseCommand(line []byte) Command {
	idx := bytes.IndexByte(line, ' ')
	if idx < 0 {
		return Command{Verb: strings.TrimSpace(string(line))}
	}
	return Command{
		Verb:  strings.TrimSpace(string(line[:idx])),
		Param: string(line[idx:]),
	}
}

// Fold returns a copy of the command with its verb upper-cased.
func (c Command) Fold() Command {
	c.Verb = strings.ToUpper(c.Verb)
	return c
}

// IsKnown reports whether the verb is one of the supported commands.
// The comparison is case-sensitive.
func (c Command) IsKnown() bool {
	return knownCommands[c.Verb]
}


// ParseMailFrom extracts the reverse path from a MAIL parameter.
// The parameter must start with " FROM:" and carry at least one more byte.
// The address is returned verbatim, angle brackets and all.
func ParseMailFrom(param string) (string, bool) {
	return cutPrefix(param, mailPrefix)
}

// ParseRcptTo extracts the forward path from a RCPT parameter.
// The parameter must start with " TO:" and carry at least one more byte.
func ParseRcptTo(param string) (string, bool) {
	return cutPrefix(param, rcptPrefix)
}

func cutPrefix(param, prefix string) (string, bool) {
	if len(param) < len(prefix)+1 || !strings.HasPrefix(param, prefix) {
		return "", false
	}
	return param[len(prefix):], true
}
