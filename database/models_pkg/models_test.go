package models

import "testing"

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusPending, false},
		{StatusCountered, false},
		{StatusAccepted, true},
		{StatusRejected, true},
		{StatusExpired, true},
	}

	for _, tt := range tests {
		n := &Negotiation{Status: tt.status}
		if got := n.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
