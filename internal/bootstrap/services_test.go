package bootstrap

import (
	"testing"

	"github.com/canvascast/canvascast-go/config"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "http and worker",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeWorker},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeWorker,
				config.ServiceModeSweeper,
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestErrorChannelBufferSize(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 1,
		},
		{
			name:  "sweeper only",
			modes: []config.ServiceMode{config.ServiceModeSweeper},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeWorker,
				config.ServiceModeSweeper,
			},
			want: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelBufferSize(enabled); got != tt.want {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}
