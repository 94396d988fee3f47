package plans

import (
	"fmt"
	"sort"
	"strings"
)

// Plan is one purchasable subscription option. The catalog is static and
// loaded at startup; plan ids are round-tripped through payment providers
// inside the merchant reference, so they must never contain the reference
// separator.
type Plan struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	PriceMinor   int64  `json:"price_minor"`
	DurationDays int    `json:"duration_days"`
}

// Currency is the storefront currency for all plans.
const Currency = "UGX"

var catalog = map[string]Plan{
	"2days":   {ID: "2days", DisplayName: "Quick Pass", PriceMinor: 5000, DurationDays: 2},
	"1week":   {ID: "1week", DisplayName: "Weekly", PriceMinor: 10000, DurationDays: 7},
	"2weeks":  {ID: "2weeks", DisplayName: "Two Weeks", PriceMinor: 17000, DurationDays: 14},
	"1month":  {ID: "1month", DisplayName: "Monthly", PriceMinor: 30000, DurationDays: 30},
	"3months": {ID: "3months", DisplayName: "Quarterly", PriceMinor: 70000, DurationDays: 90},
	"6months": {ID: "6months", DisplayName: "Half Year", PriceMinor: 120000, DurationDays: 180},
	"1year":   {ID: "1year", DisplayName: "Annual", PriceMinor: 200000, DurationDays: 365},
}

// Get resolves a plan id to its definition.
func Get(id string) (Plan, bool) {
	p, ok := catalog[strings.TrimSpace(id)]
	return p, ok
}

// All returns every plan ordered by duration, shortest first.
func All() []Plan {
	out := make([]Plan, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DurationDays < out[j].DurationDays
	})
	return out
}

// Validate checks the catalog invariants. Called once at startup; a broken
// catalog is a deployment error, so the caller panics on failure.
func Validate() error {
	for id, p := range catalog {
		if id != p.ID {
			return fmt.Errorf("plan %q: key does not match id %q", id, p.ID)
		}
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("plan with empty id")
		}
		if strings.Contains(p.ID, "-") {
			return fmt.Errorf("plan %q: id must not contain '-'", p.ID)
		}
		if p.PriceMinor <= 0 {
			return fmt.Errorf("plan %q: price must be positive", p.ID)
		}
		if p.DurationDays <= 0 {
			return fmt.Errorf("plan %q: duration must be positive", p.ID)
		}
	}
	return nil
}
