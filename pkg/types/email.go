package types

// Candidate is one unseen message fetched from the mailbox during a cycle
type Candidate struct {
	UID uint32
	Raw []byte
}

// BodyPart is a single MIME part of a parsed message
type BodyPart struct {
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// ParsedEmail is the structured view of a candidate message
type ParsedEmail struct {
	UID     uint32     `json:"uid"`
	From    string     `json:"from"`
	Subject string     `json:"subject"`
	Parts   []BodyPart `json:"parts"`
}

// Alert is the payload handed to a notifier.
// It is only built for messages that carry a screenshot.
type Alert struct {
	Summary string `json:"summary"`
	Link    string `json:"link,omitempty"`
	Image   []byte `json:"-"`
}

// HasLink reports whether the alert carries a deep link
func (a Alert) HasLink() bool {
	return a.Link != ""
}
