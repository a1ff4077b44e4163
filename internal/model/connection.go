package model

import "time"

// ConnectionStatus is the state of one directed edge in the social graph.
type ConnectionStatus string

const (
	StatusPending  ConnectionStatus = "pending"
	StatusAccepted ConnectionStatus = "accepted"
)

// Connection is a directed edge: UserID wants (or has) a link to PersonID.
//
// An accepted relationship is always stored as two edges, one per
// direction, so "who am I connected to" is a single-column lookup from
// either side. Removing a relationship deletes both.
type Connection struct {
	ID        string           `json:"id"        db:"id"`
	UserID    string           `json:"userId"    db:"user_id"`
	PersonID  string           `json:"personId"  db:"person_id"`
	Status    ConnectionStatus `json:"status"    db:"status"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

// Contact is a connection joined with the profile on the other end, the
// shape the client shows in lists and pickers.
type Contact struct {
	ConnectionID string           `json:"connectionId"`
	Status       ConnectionStatus `json:"status"`
	Profile      Profile          `json:"profile"`
}
