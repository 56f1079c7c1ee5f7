package domain

import (
	"strings"
	"time"
)

// Member is a visitor who signed up for the chat assistant.
// Credentials are held by the chat platform only.
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company"`
	VisitorID string    `json:"visitor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Username derives the chat platform username from the email local part.
func (m *Member) Username() string {
	return UsernameFromEmail(m.Email)
}

// UsernameFromEmail returns everything before the first "@".
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// FirstName returns the first word of the member's name, falling back to the username.
func (m *Member) FirstName() string {
	source := strings.TrimSpace(m.Name)
	if source == "" {
		source = m.Username()
	}
	first, _, _ := strings.Cut(source, " ")
	return first
}
