package app

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewSession(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{name: "screening submit", command: "screening submit"},
		{name: "empty command", command: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(tt.command)

			if s.Command != tt.command {
				t.Errorf("Command = %q, want %q", s.Command, tt.command)
			}
			if s.Status != "success" {
				t.Errorf("Status = %q, want %q", s.Status, "success")
			}
			if _, err := uuid.Parse(s.ID); err != nil {
				t.Errorf("ID = %q is not a UUID: %v", s.ID, err)
			}
			if s.StartedAt.IsZero() {
				t.Error("StartedAt is zero")
			}
		})
	}

	if NewSession("a").ID == NewSession("a").ID {
		t.Error("sessions share an ID")
	}
}

func TestSession_Fail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil error keeps success", err: nil, want: "success"},
		{name: "error marks failure", err: errors.New("boom"), want: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("sync")
			s.Fail(tt.err)
			if s.Status != tt.want {
				t.Errorf("Status = %q, want %q", s.Status, tt.want)
			}
		})
	}
}
