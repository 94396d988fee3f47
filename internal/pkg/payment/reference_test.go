package payment

import (
	"errors"
	"testing"
	"time"
)

func TestReferenceRoundTrip(t *testing.T) {
	tests := []struct {
		userID     string
		planID     string
		wantPrefix string
	}{
		{userID: "a1b2c3d4e5f6", planID: "1month", wantPrefix: "a1b2c3d4"},
		{userID: "shortid", planID: "2days", wantPrefix: "shortid"},
		{userID: "ffffffff00000000", planID: "1year", wantPrefix: "ffffffff"},
	}

	at := time.UnixMilli(1735689600000)
	for _, tt := range tests {
		ref, err := encodeReferenceAt(tt.userID, tt.planID, at)
		if err != nil {
			t.Fatalf("encode(%q, %q): %v", tt.userID, tt.planID, err)
		}

		parts, err := DecodeReference(ref)
		if err != nil {
			t.Fatalf("decode(%q): %v", ref, err)
		}
		if parts.UserPrefix != tt.wantPrefix {
			t.Fatalf("decode(%q).UserPrefix = %q, want %q", ref, parts.UserPrefix, tt.wantPrefix)
		}
		if parts.PlanID != tt.planID {
			t.Fatalf("decode(%q).PlanID = %q, want %q", ref, parts.PlanID, tt.planID)
		}
		if parts.TimestampMillis != at.UnixMilli() {
			t.Fatalf("decode(%q).TimestampMillis = %d, want %d", ref, parts.TimestampMillis, at.UnixMilli())
		}
	}
}

func TestEncodeRejectsSeparatorInFields(t *testing.T) {
	var fieldErr *InvalidFieldError

	_, err := EncodeReference("user-id", "1month")
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected InvalidFieldError for user id with separator, got %v", err)
	}

	_, err = EncodeReference("user1234", "1-month")
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected InvalidFieldError for plan id with separator, got %v", err)
	}

	_, err = EncodeReference("", "1month")
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected InvalidFieldError for empty user id, got %v", err)
	}

	_, err = EncodeReference("user1234", "")
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected InvalidFieldError for empty plan id, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	var malformed *MalformedReferenceError

	tests := []string{
		"",
		"SUB-abc-1month",            // missing timestamp
		"SUB-abc-1month-12345-junk", // extra field
		"PAY-abc-1month-12345",      // wrong prefix
		"SUB-abc-1month-notanumber",
		"SUB--1month-12345",
	}

	for _, ref := range tests {
		_, err := DecodeReference(ref)
		if !errors.As(err, &malformed) {
			t.Fatalf("DecodeReference(%q): expected MalformedReferenceError, got %v", ref, err)
		}
	}
}

func TestEncodeTruncatesLongUserID(t *testing.T) {
	ref, err := EncodeReference("0123456789abcdef", "1week")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	parts, err := DecodeReference(ref)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parts.UserPrefix != "01234567" {
		t.Fatalf("UserPrefix = %q, want first 8 chars", parts.UserPrefix)
	}
}
