package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is the persisted user record
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Verified     bool
	Profile      Profile

	VerificationTokenHash      *string
	VerificationTokenExpiresAt *time.Time
	ResetTokenHash             *string
	ResetTokenExpiresAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountDraft carries everything needed to create an account. Password is
// plaintext and is hashed by the store before it is written.
type AccountDraft struct {
	Username          string
	Email             string
	Password          string
	Role              string
	Profile           Profile
	VerificationToken *OneTimeToken
}

// Profile is the optional public profile sub-record, stored as a JSON document
type Profile struct {
	FullName   string     `json:"fullName"`
	Bio        string     `json:"bio"`
	ProfilePic string     `json:"profilePic"`
	BirthDate  *time.Time `json:"birthDate,omitempty"`
	Location   string     `json:"location,omitempty"`
	AboutMe    string     `json:"aboutMe"`
}

// ProfilePatch is a partial profile update. A nil field is absent and leaves
// the stored value untouched.
type ProfilePatch struct {
	FullName   *string
	Bio        *string
	ProfilePic *string
	BirthDate  *time.Time
	Location   *string
	AboutMe    *string
}

// Apply merges the present fields of the patch into p
func (pp ProfilePatch) Apply(p *Profile) {
	if pp.FullName != nil {
		p.FullName = *pp.FullName
	}
	if pp.Bio != nil {
		p.Bio = *pp.Bio
	}
	if pp.ProfilePic != nil {
		p.ProfilePic = *pp.ProfilePic
	}
	if pp.BirthDate != nil {
		birthDate := *pp.BirthDate
		p.BirthDate = &birthDate
	}
	if pp.Location != nil {
		p.Location = *pp.Location
	}
	if pp.AboutMe != nil {
		p.AboutMe = *pp.AboutMe
	}
}

// IsEmpty reports whether the patch carries no fields
func (pp ProfilePatch) IsEmpty() bool {
	return pp.FullName == nil && pp.Bio == nil && pp.ProfilePic == nil &&
		pp.BirthDate == nil && pp.Location == nil && pp.AboutMe == nil
}

// IsValidRole reports whether role is one of the two known roles
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
