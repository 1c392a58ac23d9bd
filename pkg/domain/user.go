package domain

import (
	"strings"

	"golang.org/x/text/language"
)

// UserState is the lifecycle state of a user aggregate.
type UserState int32

const (
	UserStateUnspecified UserState = iota
	UserStateActive
	UserStateInactive
	UserStateLocked
	UserStateDeleted
)

// Exists reports whether the user occupies its username.
// Deleted users release the name; inactive and locked users keep it.
func (s UserState) Exists() bool {
	return s != UserStateUnspecified && s != UserStateDeleted
}

// UserType discriminates human from machine users.
type UserType int32

const (
	UserTypeUnspecified UserType = iota
	UserTypeHuman
	UserTypeMachine
)

// Gender as submitted on a human profile.
type Gender int32

const (
	GenderUnspecified Gender = iota
	GenderFemale
	GenderMale
	GenderDiverse
)

// Profile is the mutable human profile.
type Profile struct {
	FirstName         string
	LastName          string
	NickName          string
	DisplayName       string
	PreferredLanguage language.Tag
	Gender            Gender
}

// Email with its verification flag.
type Email struct {
	Address  string
	Verified bool
}

// Normalize lowercases the address for comparison and storage.
func (e Email) Normalize() Email {
	e.Address = strings.ToLower(strings.TrimSpace(e.Address))
	return e
}

// Phone with its verification flag.
type Phone struct {
	Number   string
	Verified bool
}

// ExternalUser is the normalised identity returned by an IDP.
type ExternalUser struct {
	IDPConfigID    string
	ExternalUserID string
	Email          string
	EmailVerified  bool
	Username       string
	FirstName      string
	LastName       string
	DisplayName    string
	AvatarURL      string
	Locale         string
}

// UserIDPLink associates a user with an external identity. The triple
// (user, idpConfigID, externalUserID) is unique.
type UserIDPLink struct {
	IDPConfigID    string
	ExternalUserID string
	DisplayName    string
}
