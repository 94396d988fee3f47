package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Merchant references correlate our payment intents with provider
// transactions. Format: SUB-<user prefix>-<plan id>-<unix millis>.
// Both providers round-trip the reference verbatim, so the fields must
// stay parseable: anything containing the separator is rejected at encode
// time instead of silently producing a token that splits wrong.
const (
	// ReferencePrefix starts every merchant reference this service emits.
	ReferencePrefix = "SUB"

	referenceSeparator = "-"
	userPrefixLen      = 8
)

// InvalidFieldError reports a field that cannot be embedded in a merchant
// reference.
type InvalidFieldError struct {
	Field string
	Value string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid reference field %s: %q", e.Field, e.Value)
}

// MalformedReferenceError reports a token that does not parse back into
// its expected fields.
type MalformedReferenceError struct {
	Reference string
	Reason    string
}

func (e *MalformedReferenceError) Error() string {
	return fmt.Sprintf("malformed merchant reference %q: %s", e.Reference, e.Reason)
}

// ReferenceParts is the decoded form of a merchant reference. UserPrefix is
// the leading characters of the user's public id, a consistency check only;
// the stored intent is authoritative for the full user.
type ReferenceParts struct {
	UserPrefix      string
	PlanID          string
	TimestampMillis int64
}

// EncodeReference builds a merchant reference for a user/plan pair. The
// millisecond timestamp makes the token unique per intent in practice.
func EncodeReference(userPublicID, planID string) (string, error) {
	return encodeReferenceAt(userPublicID, planID, time.Now())
}

func encodeReferenceAt(userPublicID, planID string, now time.Time) (string, error) {
	prefix := userPublicID
	if len(prefix) > userPrefixLen {
		prefix = prefix[:userPrefixLen]
	}
	if prefix == "" {
		return "", &InvalidFieldError{Field: "userId", Value: userPublicID}
	}
	if strings.Contains(prefix, referenceSeparator) {
		return "", &InvalidFieldError{Field: "userId", Value: userPublicID}
	}
	if planID == "" || strings.Contains(planID, referenceSeparator) {
		return "", &InvalidFieldError{Field: "planId", Value: planID}
	}

	return strings.Join([]string{
		ReferencePrefix,
		prefix,
		planID,
		strconv.FormatInt(now.UnixMilli(), 10),
	}, referenceSeparator), nil
}

// DecodeReference parses a merchant reference back into its fields.
func DecodeReference(ref string) (ReferenceParts, error) {
	fields := strings.Split(ref, referenceSeparator)
	if len(fields) != 4 {
		return ReferenceParts{}, &MalformedReferenceError{Reference: ref, Reason: "expected 4 fields"}
	}
	if fields[0] != ReferencePrefix {
		return ReferenceParts{}, &MalformedReferenceError{Reference: ref, Reason: "missing SUB prefix"}
	}
	if fields[1] == "" || fields[2] == "" {
		return ReferenceParts{}, &MalformedReferenceError{Reference: ref, Reason: "empty field"}
	}
	millis, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return ReferenceParts{}, &MalformedReferenceError{Reference: ref, Reason: "non-numeric timestamp"}
	}

	return ReferenceParts{
		UserPrefix:      fields[1],
		PlanID:          fields[2],
		TimestampMillis: millis,
	}, nil
}
