package store

import (
	"testing"

	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		name   string
		action string
		from   string
		want   bool
	}{
		{"approve pending", ActionApprove, model.StatusPending, true},
		{"approve approved", ActionApprove, model.StatusApproved, false},
		{"reject pending", ActionReject, model.StatusPending, true},
		{"reject completed", ActionReject, model.StatusCompleted, false},
		{"complete approved", ActionComplete, model.StatusApproved, true},
		{"complete pending", ActionComplete, model.StatusPending, false},
		{"cancel pending", ActionCancel, model.StatusPending, true},
		{"cancel approved", ActionCancel, model.StatusApproved, true},
		{"cancel completed", ActionCancel, model.StatusCompleted, false},
		{"cancel cancelled", ActionCancel, model.StatusCancelled, false},
		{"unknown action", "archive", model.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTransition(tt.action, tt.from); got != tt.want {
				t.Fatalf("ValidTransition(%q, %q) = %v, want %v", tt.action, tt.from, got, tt.want)
			}
		})
	}
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		action string
		want   string
	}{
		{ActionApprove, model.StatusApproved},
		{ActionReject, model.StatusRejected},
		{ActionComplete, model.StatusCompleted},
		{ActionCancel, model.StatusCancelled},
		{"archive", ""},
	}
	for _, tt := range tests {
		if got := NextStatus(tt.action); got != tt.want {
			t.Fatalf("NextStatus(%q) = %q, want %q", tt.action, got, tt.want)
		}
	}
}
