package smtp

import "slices"

// Envelope is the mail transaction a session is building. It is one of
// Empty, HasSender, HasRecipients or Complete; the set is closed.
type Envelope interface {
	State() State
	envelope()
}

// Empty is an envelope with no open transaction.
type Empty struct{}

// HasSender holds the reverse path accepted by MAIL.
type HasSender struct {
	sender string
}

// HasRecipients holds the sender and one or more recipients, in RCPT order.
type HasRecipients struct {
	sender     string
	recipients []string
}

// Complete is a finished envelope ready to be persisted.
type Complete struct {
	sender     string
	recipients []string
	body       string
}

func (Empty) envelope()         {}
func (HasSender) envelope()     {}
func (HasRecipients) envelope() {}
func (Complete) envelope()      {}

// State implements Envelope.
func (Empty) State() State { return StateEmpty }

// State implements Envelope.
func (HasSender) State() State { return StateHasSender }

// State implements Envelope.
func (HasRecipients) State() State { return StateHasRecipients }

// State implements Envelope.
func (Complete) State() State { return StateComplete }

// Begin opens a new transaction, whatever was in progress before.
func Begin(sender string) HasSender {
	return HasSender{sender: sender}
}

// Sender returns the reverse path.
func (h HasSender) Sender() string { return h.sender }

// AddRecipient moves the envelope to HasRecipients with a single recipient.
func (h HasSender) AddRecipient(rcpt string) HasRecipients {
	return HasRecipients{sender: h.sender, recipients: []string{rcpt}}
}

// Sender returns the reverse path.
func (h HasRecipients) Sender() string { return h.sender }

// Recipients returns a copy of the forward paths in the order they were added.
func (h HasRecipients) Recipients() []string { return slices.Clone(h.recipients) }

// AddRecipient appends a recipient. The receiver is left untouched.
func (h HasRecipients) AddRecipient(rcpt string) HasRecipients {
	next := make([]string, len(h.recipients), len(h.recipients)+1)
	copy(next, h.recipients)
	return HasRecipients{sender: h.sender, recipients: append(next, rcpt)}
}

// Complete attaches the raw body.
func (h HasRecipients) Complete(body string) Complete {
	return Complete{sender: h.sender, recipients: slices.Clone(h.recipients), body: body}
}

// Sender returns the reverse path.
func (c Complete) Sender() string { return c.sender }

// Recipients returns a copy of the forward paths in RCPT order.
func (c Complete) Recipients() []string { return slices.Clone(c.recipients) }

// Body returns the raw message body with its original line terminators.
func (c Complete) Body() string { return c.body }
