package validation

import (
	"strings"
	"testing"
)

func TestValidateDeviceID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"serial number", "R58M123ABC", false},
		{"generated id", "dev_7b9c0a2e-91f4-4a7a-8a2c-1f2e3d4c5b6a", false},
		{"adb style", "emulator-5554", false},
		{"ip with port", "192.168.1.20:5555", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "dev id!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDeviceID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"generated id", "sess_7b9c0a2e-91f4-4a7a-8a2c-1f2e3d4c5b6a", false},
		{"caller supplied", "run-42", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "sess/42", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateScenario(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		wantErr bool
	}{
		{"game name", "Genshin Impact", false},
		{"idle scenario", "idle-screen-on", false},
		{"empty", "", true},
		{"whitespace only", "  ", true},
		{"too long", strings.Repeat("x", 201), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScenario(tt.label)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScenario() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
