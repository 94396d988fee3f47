package entitlements

import (
	"testing"
	"time"
)

func TestExtendFromExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Expired window: extension counts from now.
	expired := now.AddDate(0, 0, -5)
	got := ExtendFrom(now, expired, 30)
	want := now.AddDate(0, 0, 30)
	if !got.Equal(want) {
		t.Fatalf("ExtendFrom expired = %v, want %v", got, want)
	}

	// No previous window at all.
	got = ExtendFrom(now, time.Time{}, 7)
	want = now.AddDate(0, 0, 7)
	if !got.Equal(want) {
		t.Fatalf("ExtendFrom zero = %v, want %v", got, want)
	}
}

func TestExtendFromStacksRemainingTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 10 days left, buying 30 more yields 40 days from now.
	current := now.AddDate(0, 0, 10)
	got := ExtendFrom(now, current, 30)
	want := now.AddDate(0, 0, 40)
	if !got.Equal(want) {
		t.Fatalf("ExtendFrom active = %v, want %v", got, want)
	}
}

func TestExtendFromNeverShortens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := now.AddDate(0, 0, 100)

	got := ExtendFrom(now, current, 2)
	if !got.After(current) {
		t.Fatalf("extension must move expiry forward: got %v, had %v", got, current)
	}
}
