package validation

import "testing"

func TestIsEmail(t *testing.T) {
	tests := []struct {
		name     string
		memberID string
		want     bool
	}{
		{"simple address", "jane@x.com", true},
		{"subdomain", "user@mail.example.co.id", true},
		{"missing at", "jane.x.com", false},
		{"missing domain dot", "jane@localhost", false},
		{"contains space", "jane doe@x.com", false},
		{"empty", "", false},
		{"phone number", "081234567890", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEmail(tt.memberID); got != tt.want {
				t.Errorf("IsEmail(%q) = %v, want %v", tt.memberID, got, tt.want)
			}
		})
	}
}

func TestIsPhoneNumber(t *testing.T) {
	tests := []struct {
		name     string
		memberID string
		want     bool
	}{
		{"typical number", "081234567890", true},
		{"single digit", "7", true},
		{"twenty digits", "12345678901234567890", true},
		{"twenty one digits", "123456789012345678901", false},
		{"with plus", "+6281234567890", false},
		{"with dash", "0812-3456-7890", false},
		{"empty", "", false},
		{"email", "jane@x.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPhoneNumber(tt.memberID); got != tt.want {
				t.Errorf("IsPhoneNumber(%q) = %v, want %v", tt.memberID, got, tt.want)
			}
		})
	}
}
