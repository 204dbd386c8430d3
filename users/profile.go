package users

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// Profile is the signed-in user as returned by the auth endpoints and cached
// alongside the credential.
type Profile struct {
	ID          string     `json:"id"`                    // Unique identifier for the user
	Username    string     `json:"username"`              // Unique username
	Email       string     `json:"email,omitempty"`       // User's email address
	DisplayName string     `json:"displayName,omitempty"` // Optional full name
	IsActive    bool       `json:"isActive,omitempty"`    // Account enabled on the server
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

// UnmarshalJSON accepts the server's `_id` and `fullName` spellings as well as
// the cached `id` and `displayName` form.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type alias Profile
	aux := struct {
		*alias
		LegacyID string `json:"_id"`
		FullName string `json:"fullName"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = aux.LegacyID
	}
	if p.DisplayName == "" {
		p.DisplayName = aux.FullName
	}
	return nil
}

// Name returns the display name, falling back to the username.
func (p *Profile) Name() string {
	if p == nil {
		return ""
	}
	if strings.TrimSpace(p.DisplayName) != "" {
		return p.DisplayName
	}
	return p.Username
}

// Initials returns the upper-cased first letter of each display name word, or
// the first two letters of the username when there is no display name.
func (p *Profile) Initials() string {
	if p == nil {
		return ""
	}
	if words := strings.Fields(p.DisplayName); len(words) > 0 {
		var b strings.Builder
		for _, w := range words {
			r, _ := utf8.DecodeRuneInString(w)
			b.WriteRune(r)
		}
		return strings.ToUpper(b.String())
	}
	runes := []rune(p.Username)
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return strings.ToUpper(string(runes))
}

// Valid reports whether the profile carries the fields a restored session needs.
func (p *Profile) Valid() bool {
	return p != nil && p.ID != "" && p.Username != ""
}
