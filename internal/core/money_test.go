package core

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"0", "0.00", true},
		{".5", "0.50", true},
		{"5.", "5.00", true},
		{" 2.50 ", "2.50", true},
		{"-1", "", false},
		{"+1", "", false},
		{"1e3", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{".", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseAmountKeepsPrecision(t *testing.T) {
	a, err := ParseAmount("0.105")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Decimal().String() != "0.105" {
		t.Fatalf("precision lost: %s", a.Decimal())
	}
}

func TestAmountJSON(t *testing.T) {
	cases := []struct {
		in    string
		out   string
		valid bool
	}{
		{`1000`, `1000`, true},
		{`12.5`, `12.5`, true},
		{`1000.00`, `1000`, true},
		{`1e2`, `100`, true},
		{`1e-400`, `0`, true},
		{`1e400`, `1e400`, false},
		{`-1e400`, `-1e400`, false},
		{`1e50000000`, `1e50000000`, false},
		{`-5`, `-5`, false},
		{`"12.5"`, `"12.5"`, false},
		{`null`, `null`, false},
		{`{"x":1}`, `{"x":1}`, false},
	}
	for _, tc := range cases {
		var a Amount
		if err := json.Unmarshal([]byte(tc.in), &a); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.in, err)
		}
		if (a.Validate() == nil) != tc.valid {
			t.Fatalf("%s: valid=%v, want %v", tc.in, a.Validate() == nil, tc.valid)
		}
		b, err := json.Marshal(a)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.in, err)
		}
		if string(b) != tc.out {
			t.Fatalf("%s: marshalled %s, want %s", tc.in, b, tc.out)
		}
	}
}

func TestAmountFromCents(t *testing.T) {
	if got := AmountFromCents(123456).String(); got != "1234.56" {
		t.Fatalf("got %s", got)
	}
	if !AmountFromCents(100).Equal(AmountFromJSON([]byte("1"))) {
		t.Fatalf("expected 1.00 == 1")
	}
}
