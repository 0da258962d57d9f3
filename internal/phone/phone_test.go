package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"054-123 4567", "972541234567"},
		{"0541234567", "972541234567"},
		{"+972 54 123 4567", "972541234567"},
		{"00972541234567", "972541234567"},
		{"972541234567", "972541234567"},
		{"972541234567@c.us", "972541234567"},
		{"972541234567@s.whatsapp.net", "972541234567"},
		{"(03) 555-1234", "97235551234"},
		{"+1 (415) 555-0100", "14155550100"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.raw, "")
		if err != nil {
			t.Errorf("Normalize(%q) error = %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeCountryCode(t *testing.T) {
	got, err := Normalize("06 12 34 56 78", "33")
	if err != nil {
		t.Fatal(err)
	}
	if got != "33612345678" {
		t.Errorf("got %q, want 33612345678", got)
	}
}

func TestNormalizeInvalid(t *testing.T) {
	for _, raw := range []string{"", "123", "abc", "054-123x567", "+1234567890123456", "120363041234567890@g.us", "972541234567@broadcast", "972541234567@"} {
		if _, err := Normalize(raw, ""); !errors.Is(err, ErrInvalidNumber) {
			t.Errorf("Normalize(%q) error = %v, want ErrInvalidNumber", raw, err)
		}
	}
}
