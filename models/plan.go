package models

// Plan is a paid storage tier. The set is fixed; anything outside it is
// invalid input.
type Plan struct {
	ID           string
	Name         string
	QuotaBytes   int64
	DurationDays int
	PriceUSD     float64
}

const gib = 1 << 30

var plans = []Plan{
	{ID: "basic", Name: "Basic", QuotaBytes: 1 * gib, DurationDays: 30, PriceUSD: 2},
	{ID: "standard", Name: "Standard", QuotaBytes: 5 * gib, DurationDays: 30, PriceUSD: 5},
	{ID: "pro", Name: "Pro", QuotaBytes: 20 * gib, DurationDays: 90, PriceUSD: 12},
}

// Plans returns the plan catalog in display order.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// LookupPlan returns the plan with the given id, if it exists.
func LookupPlan(id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
