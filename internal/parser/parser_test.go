package parser

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"absa", "ABSA Bank Limited\nCheque account", "absa"},
		{"fnb", "First National Bank - Gold Account", "fnb"},
		{"standard bank", "The Standard Bank of South Africa", "standard bank"},
		{"nedbank", "NEDBANK LTD", "nedbank"},
		{"capitec", "Capitec Global One", "capitec"},
		{"hsbc", "HSBC UK Bank plc", "hsbc"},
		{"barclays", "Barclays Bank UK PLC", "barclays"},
		{"metro", "Metro Bank PLC", "metro"},
		{"unknown", "Some Credit Union", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.text); got != tt.expected {
				t.Errorf("Detect(%q): got %q, want %q", tt.text, got, tt.expected)
			}
		})
	}
}
