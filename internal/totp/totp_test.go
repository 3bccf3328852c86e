package totp

import (
	"testing"
	"time"
)

// RFC 6238 SHA-1 test secret ("12345678901234567890" in base32).
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestCode_RFCVectors(t *testing.T) {
	cases := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
	}

	for _, tc := range cases {
		got, err := Code(rfcSecret, time.Unix(tc.unix, 0).UTC())
		if err != nil {
			t.Fatalf("Code at %d: %v", tc.unix, err)
		}
		if got != tc.want {
			t.Errorf("Code at %d = %s, want %s", tc.unix, got, tc.want)
		}
	}
}

func TestCode_SecretNormalization(t *testing.T) {
	// Lowercase with spaces, as pasted from an authenticator setup screen.
	got, err := Code("gezd gnbv gy3t qojq gezd gnbv gy3t qojq", time.Unix(59, 0).UTC())
	if err != nil {
		t.Fatal(err)
	}
	if got != "287082" {
		t.Errorf("Code = %s, want 287082", got)
	}
}

func TestCode_EmptySecret(t *testing.T) {
	if _, err := Code("   ", time.Now()); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
