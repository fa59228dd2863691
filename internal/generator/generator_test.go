package generator

import "testing"

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"running not terminal", StatusRunning, false},
		{"succeeded is terminal", StatusSucceeded, true},
		{"failed is terminal", StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("Status.IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_Status(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want Status
	}{
		{"not done", Operation{Name: "op"}, StatusRunning},
		{"not done ignores error flag", Operation{Failed: true}, StatusRunning},
		{"done", Operation{Done: true, VideoURI: "uri"}, StatusSucceeded},
		{"done with error", Operation{Done: true, Failed: true}, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op.Status(); got != tt.want {
				t.Errorf("Operation.Status() = %v, want %v", got, tt.want)
			}
		})
	}
}
