/*
Package irc defines the wire-level message type used by the link protocol:
parsing a single CRLF-terminated line into a structured Message, and
formatting a Message back into a line to put on the wire.
*/
package irc

import "strings"

const (
	// maxMiddleParams is the maximum number of space-delimited parameters
	// that precede an optional trailing parameter.
	maxMiddleParams = 14

	// errMsgNoCRLF is given when the input does not end in CRLF.
	errMsgNoCRLF = "CRLF terminators not found"
	// errMsgEmpty is given when the line is empty once CRLF is stripped.
	errMsgEmpty = "Empty message"
	// errMsgNoPrefixSpace is given when a ':'-prefixed source has no
	// trailing space separator.
	errMsgNoPrefixSpace = "Prefix found but no space separator"
	// errMsgEmptyCommand is given when no command token could be found.
	errMsgEmptyCommand = "Empty command"
)

// ParseError is returned by Parse when a line does not conform to the wire
// grammar. Callers treat any ParseError as fatal: the uplink's output is
// expected to always be well-formed.
type ParseError struct {
	// Msg describes what went wrong.
	Msg string
	// Line is the offending input, including its CRLF if present.
	Line string
}

// Error satisfies the error interface.
func (e ParseError) Error() string {
	return e.Msg
}

// Message is a single parsed (or to-be-serialized) IRC line: an optional
// source, a non-empty command, and an ordered parameter list of at most 15
// entries. The trailing parameter, if present, is always the last entry and
// is the only one allowed to contain spaces.
type Message struct {
	Source  string
	Command string
	Params  []string
}

// Parse parses a single line, including its trailing CRLF, into a Message.
// It follows the wire grammar literally rather than via a single regular
// expression so that every edge case surfaces its own documented failure
// string.
func Parse(line string) (Message, error) {
	rest, ok := strings.CutSuffix(line, "\r\n")
	if !ok {
		return Message{}, ParseError{Msg: errMsgNoCRLF, Line: line}
	}
	if len(rest) == 0 {
		return Message{}, ParseError{Msg: errMsgEmpty, Line: line}
	}

	var source string
	if rest[0] == ':' {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return Message{}, ParseError{Msg: errMsgNoPrefixSpace, Line: line}
		}
		source = rest[1:sp]
		rest = rest[sp+1:]
	}

	var trailing string
	hasTrailing := false
	if idx := strings.Index(rest, " :"); idx >= 0 {
		trailing = rest[idx+2:]
		rest = rest[:idx]
		hasTrailing = true
	}

	var command string
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		command = rest[:sp]
		rest = rest[sp+1:]
	} else {
		command = rest
		rest = ""
	}

	if command == "" {
		return Message{}, ParseError{Msg: errMsgEmptyCommand, Line: line}
	}

	var params []string
	for _, tok := range strings.Split(rest, " ") {
		if tok == "" {
			continue
		}
		if len(params) == maxMiddleParams {
			break
		}
		params = append(params, tok)
	}

	if hasTrailing && trailing != "" {
		params = append(params, trailing)
	}

	return Message{Source: source, Command: command, Params: params}, nil
}

// String serializes the Message into a CRLF-terminated wire line. The last
// parameter is sent as a trailing parameter (prefixed with " :") whenever it
// is empty or contains a space; otherwise it is sent as an ordinary middle
// parameter.
func (m Message) String() string {
	var b strings.Builder
	if m.Source != "" {
		b.WriteByte(':')
		b.WriteString(m.Source)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)

	for i, p := range m.Params {
		last := i == len(m.Params)-1
		if last && (p == "" || strings.ContainsRune(p, ' ')) {
			b.WriteString(" :")
			b.WriteString(p)
		} else {
			b.WriteByte(' ')
			b.WriteString(p)
		}
	}

	b.WriteString("\r\n")
	return b.String()
}
