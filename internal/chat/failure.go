package chat

import (
	"errors"
	"fmt"
	"net/http"
)

// ActionLoginRequired tells the front end to send the user to the chat login.
const ActionLoginRequired = "login_required"

// Failure is the user-facing rendering of an assistant error.
type Failure struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Action  string `json:"action,omitempty"`
}

// FailureFor maps an Ask/AskStream error to a fixed user-facing message.
// Upstream bodies are never echoed.
func FailureFor(err error) Failure {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrNotConfigured):
		return Failure{Status: http.StatusServiceUnavailable, Message: "Chat service not configured."}
	case errors.Is(err, ErrLoginRequired):
		return Failure{
			Status:  http.StatusUnauthorized,
			Message: "Authentication required. Please log in to the chat first.",
			Action:  ActionLoginRequired,
		}
	case errors.As(err, &upstream):
		switch upstream.Status {
		case http.StatusUnauthorized:
			return Failure{
				Status:  http.StatusUnauthorized,
				Message: "Authentication required. Please log in to the chat first.",
				Action:  ActionLoginRequired,
			}
		case http.StatusForbidden:
			return Failure{Status: http.StatusForbidden, Message: "Access forbidden. Check your chat permissions."}
		default:
			return Failure{Status: upstream.Status, Message: fmt.Sprintf("Chat service returned error %d", upstream.Status)}
		}
	default:
		return Failure{Status: http.StatusInternalServerError, Message: "Internal server error"}
	}
}
