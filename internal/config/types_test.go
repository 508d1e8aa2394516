package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"15s", 15 * time.Second, false},
		{"2h45m", 2*time.Hour + 45*time.Minute, false},
		{"0s", 0, false},
		{"-5s", 0, true},
		{"fast", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("UnmarshalText(%q) = nil, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalText(%q) error = %v", tt.in, err)
			}
			if d.Duration() != tt.want {
				t.Errorf("Duration = %v, want %v", d.Duration(), tt.want)
			}
		})
	}
}

func TestDuration_RoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)

	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}

	var back Duration
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText(%q) error = %v", text, err)
	}
	if back != d {
		t.Errorf("round trip = %v, want %v", back, d)
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(Duration(time.Minute))
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(out) != `"1m0s"` {
		t.Errorf("Marshal = %s, want \"1m0s\"", out)
	}
}
