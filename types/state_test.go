package types

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInit, "Init"},
		{StateLiteRunning, "LiteRunning"},
		{StateFullPreloading, "FullPreloading"},
		{StateFullReady, "FullReady"},
		{StateSwitching, "Switching"},
		{StateFullRunning, "FullRunning"},
		{StateShutdown, "Shutdown"},
		{State(999), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
