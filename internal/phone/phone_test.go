package phone

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+1500 555 0006", "+15005550006"},
		{"  +15005550006\n", "+15005550006"},
		{"0098765-43210", "+9876543210"},
		{"09876543210", "+919876543210"},
		{"919876543210", "+919876543210"},
		{"9876543210", "+919876543210"},
		{"garbage", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidate_AcceptsTestPrefix(t *testing.T) {
	res := Validate("+15005550006")
	if !res.Valid {
		t.Fatalf("expected valid, got reason %q", res.Reason)
	}
	if res.Number != "+15005550006" {
		t.Fatalf("expected number unchanged, got %q", res.Number)
	}
	if res.Reason != "" {
		t.Fatalf("expected empty reason on accept")
	}
}

func TestValidate_RejectsRealNumbersWithSafetyReason(t *testing.T) {
	for _, n := range []string{"+919876543210", "9876543210", "09876543210"} {
		res := Validate(n)
		if res.Valid {
			t.Fatalf("expected %q rejected", n)
		}
		if res.Reason == "" || !contains(res.Reason, "safety") {
			t.Fatalf("expected safety reason for %q, got %q", n, res.Reason)
		}
		if res.Number != "+919876543210" {
			t.Fatalf("expected canonical +91 form, got %q", res.Number)
		}
	}
}

func TestValidate_RejectsGarbageWithGenericReason(t *testing.T) {
	res := Validate("garbage")
	if res.Valid {
		t.Fatalf("expected rejected")
	}
	if !contains(res.Reason, "Invalid phone number format") {
		t.Fatalf("expected generic format reason, got %q", res.Reason)
	}
}

func TestParseText(t *testing.T) {
	got := ParseText("+15005550006, +15005550001\n9876543210; junk")
	want := []string{"+15005550006", "+15005550001", "+919876543210"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseText = %v, want %v", got, want)
	}
}

func TestParseCSV(t *testing.T) {
	content := []byte("+15005550006,alice\n\n+1500 555 0001,bob\n")
	got := ParseCSV(content)
	want := []string{"+15005550006", "+15005550001"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseCSV = %v, want %v", got, want)
	}
	if ParseCSV(nil) != nil {
		t.Fatalf("expected nil for empty content")
	}
}

func TestUniquePreserveOrder(t *testing.T) {
	got := UniquePreserveOrder([]string{"+15005550006", "+15005550001", "+15005550006", ""})
	want := []string{"+15005550006", "+15005550001"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("UniquePreserveOrder = %v, want %v", got, want)
	}
}

func TestLimit(t *testing.T) {
	in := []string{"a", "b", "c"}
	if got := Limit(in, 2); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Limit = %v", got)
	}
	if got := Limit(in, 5); !reflect.DeepEqual(got, in) {
		t.Fatalf("expected unchanged, got %v", got)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[31mTwilio error\x1b[0m"
	if got := StripANSI(in); got != "Twilio error" {
		t.Fatalf("StripANSI = %q", got)
	}
	if got := StripANSI(""); got != "" {
		t.Fatalf("expected empty passthrough")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
