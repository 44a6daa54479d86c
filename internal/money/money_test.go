package money

import "testing"

func TestParseMinor(t *testing.T) {
	cases := []struct {
		input string
		want  int64
	}{
		{"2500", 250000},
		{"2500.5", 250050},
		{"2500.50", 250050},
		{"0.01", 1},
		{"-10", -1000},
		{"+3.25", 325},
	}
	for _, tc := range cases {
		got, err := ParseMinor(tc.input)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.input, tc.want, got)
		}
	}
}

func TestParseMinorRejectsInvalid(t *testing.T) {
	for _, input := range []string{"", "  ", "abc", "1.2.3", "1.234", "1,50"} {
		if _, err := ParseMinor(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	if got := FormatMinor(250050); got != "2500.50" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatMinor(-75); got != "-0.75" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatMinor(0); got != "0.00" {
		t.Fatalf("unexpected format: %s", got)
	}
}
