// Package domain contains the value types shared by commands, write models
// and the query layer. Types here are pure data; behavior lives with the
// aggregates in pkg/command.
package domain

import "time"

// ObjectDetails is returned by every command. Sequence, EventDate and
// ResourceOwner mirror the last pushed event's aggregate version, creation
// time and owner.
type ObjectDetails struct {
	Sequence      uint64
	EventDate     time.Time
	ResourceOwner string
	ID            string
}
