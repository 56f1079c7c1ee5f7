package domain

import (
	"time"
)

// Lead is a contact form submission kept for follow-up.
type Lead struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	Service       string    `json:"service,omitempty"`
	Message       string    `json:"message"`
	VisitorID     string    `json:"visitor_id,omitempty"`
	AdminNotified bool      `json:"admin_notified"`
	CreatedAt     time.Time `json:"created_at"`
}

// PhoneOrDefault returns the phone number or a placeholder for emails.
func (l *Lead) PhoneOrDefault() string {
	if l.Phone == "" {
		return "Not provided"
	}
	return l.Phone
}

// ServiceOrDefault returns the requested service or a placeholder for emails.
func (l *Lead) ServiceOrDefault() string {
	if l.Service == "" {
		return "Not specified"
	}
	return l.Service
}
