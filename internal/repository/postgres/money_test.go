package postgres

import "testing"

func TestNumericStringToCents(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"149.99", 14999, false},
		{"0.01", 1, false},
		{"0.00", 0, false},
		{"1250", 125000, false},
		{"1250.5", 125050, false},
		{".75", 75, false},
		{"-42.10", -4210, false},
		{" 99.00 ", 9900, false},
		// NUMERIC(20,2) holds more than float64's 53 bits of mantissa.
		{"92233720368547757.50", 9223372036854775750, false},
		{"", 0, true},
		{"12.345", 0, true},
		{"abc", 0, true},
		{"12.x9", 0, true},
	}

	for _, tt := range tests {
		got, err := numericStringToCents(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("numericStringToCents(%q): expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("numericStringToCents(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("numericStringToCents(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCentsToNumericString(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{14999, "149.99"},
		{1, "0.01"},
		{0, "0.00"},
		{125000, "1250.00"},
		{-4210, "-42.10"},
	}

	for _, tt := range tests {
		if got := centsToNumericString(tt.in); got != tt.want {
			t.Errorf("centsToNumericString(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMoneyRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, 99, 100, 14999, -1, -14999, 9223372036854775750} {
		s := centsToNumericString(cents)
		back, err := numericStringToCents(s)
		if err != nil {
			t.Fatalf("round trip %d via %q: %v", cents, s, err)
		}
		if back != cents {
			t.Errorf("round trip %d via %q: got %d", cents, s, back)
		}
	}
}
