package app

import (
	"time"

	"github.com/google/uuid"
)

// Session tracks one CLI command run. Its ID tags every log line the command
// writes so a run can be followed through mindcare.log.
type Session struct {
	ID        string
	Command   string
	StartedAt time.Time
	Status    string // "success" or "error"
}

// NewSession creates a session for command with a fresh ID.
func NewSession(command string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Command:   command,
		StartedAt: time.Now(),
		Status:    "success",
	}
}

// Fail marks the session as failed if err is non-nil.
func (s *Session) Fail(err error) {
	if err != nil {
		s.Status = "error"
	}
}
