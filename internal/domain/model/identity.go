package model

import "time"

// Identity is an enrolled person. Each identity holds at most one active descriptor.
type Identity struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"display_name"`
	ExternalRef string     `json:"external_ref,omitempty"` // e.g. a roll number
	Descriptor  Descriptor `json:"-"`
	EnrolledAt  time.Time  `json:"enrolled_at"`
}

// Entry projects the identity onto its gallery row.
func (i Identity) Entry() Entry {
	return Entry{IdentityID: i.ID, Descriptor: i.Descriptor}
}

// AttendanceRecord is an immutable attendance event.
type AttendanceRecord struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	IdentityID int64     `json:"identity_id"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Location   string    `json:"location"`
	Manual     bool      `json:"manual,omitempty"`
}
