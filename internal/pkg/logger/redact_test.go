package logger

import "testing"

func TestRedactPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+15551234567", "********4567"},
		{"5551234567", "******4567"},
		{"1234", "****"},
		{"", "****"},
	}
	for _, tc := range cases {
		if got := RedactPhone(tc.in); got != tc.want {
			t.Errorf("RedactPhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRedactPIIValue(t *testing.T) {
	// Destination-address fields are always masked.
	if got := redactPIIValue("phone", "+15551234567"); got != "********4567" {
		t.Errorf("phone field = %q", got)
	}
	if got := redactPIIValue("recipient_phone", "5551234567"); got != "******4567" {
		t.Errorf("recipient field = %q", got)
	}

	// Numbers embedded in generic fields are masked too.
	got := redactPIIValue("error", "send to +15551234567 timed out")
	if got != "send to ********4567 timed out" {
		t.Errorf("embedded number = %q", got)
	}

	// Non-PII values pass through untouched.
	if got := redactPIIValue("campaign", "camp-42"); got != "camp-42" {
		t.Errorf("plain value = %q", got)
	}
}
