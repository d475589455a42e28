package model

import "time"

// Message is one .msg file rendered to RFC 5322 and ready for delivery.
type Message struct {
	ID         string
	Hash       string
	Source     string
	Subject    string
	From       string
	ReceivedAt time.Time
	Size       int64
	Raw        []byte

	// Diagnostics of the decode, summed over embedded messages.
	UnknownEntries int
	DecodeFailures int
	Attachments    int
}

// Envelope wraps a message alongside an optional error encountered while decoding.
type Envelope struct {
	Message Message
	Err     error
}
