package smtp

import (
	"fmt"
	"strings"
)

// Reply codes emitted by the server.
const (
	Code220 = 220
	Code221 = 221
	Code250 = 250
	Code252 = 252
	Code354 = 354
	Code451 = 451
	Code500 = 500
	Code503 = 503
)

const (
	// DefaultDomain is the identity announced in the greeting and EHLO reply.
	DefaultDomain = "mail.example.com"
	// DefaultMaxMessageSize is the SIZE advertised in the EHLO reply (14 MiB).
	DefaultMaxMessageSize = 14680064
)

// Fixed single-line replies. Texts are part of the wire contract.
const (
	ReplyOK           = "250 Ok"
	ReplyBye          = "221 Bye"
	ReplyCannotVerify = "252 Cannot VRFY user, but will accept message and attempt delivery"
	ReplyStartData    = "354 End data with <CR><LF>.<CR><LF>"
	ReplySyntaxError  = "500 Syntax error, command unrecognised"
	ReplyBadSequence  = "503 Bad sequence of commands"
	ReplyLocalError   = "451 Requested action aborted: local error in processing"
)

// GreetingReply is sent once when a session starts.
func GreetingReply(domain string) string {
	return fmt.Sprintf("%d %s Service ready", Code220, domain)
}

// HeloReply echoes the HELO parameter verbatim, including its leading space.
func HeloReply(param string) string {
	if param == "" {
		return fmt.Sprintf("%d Hello there, glad to meet you", Code250)
	}
	return fmt.Sprintf("%d Hello %s, glad to meet you", Code250, param)
}

// EhloReply builds the two-line EHLO reply advertising the maximum message size.
// Lines are joined with CRLF; the writer adds the final terminator.
func EhloReply(domain, param string, maxSize int) string {
	him := "you"
	if param != "" {
		him = param
	}
	lines := []string{
		fmt.Sprintf("%d-%s Hello %s", Code250, domain, him),
		fmt.Sprintf("%d SIZE %d", Code250, maxSize),
	}
	return strings.Join(lines, "\r\n")
}

// ReplyCode returns the numeric code opening a reply, or 0 if there is none.
func ReplyCode(reply string) int {
	if len(reply) < 3 {
		return 0
	}
	code := 0
	for _, c := range reply[:3] {
		if c < '0' || c > '9' {
			return 0
		}
		code = code*10 + int(c-'0')
	}
	return code
}
