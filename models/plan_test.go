package models

import "testing"

func TestLookupPlan(t *testing.T) {
	p, ok := LookupPlan("standard")
	if !ok {
		t.Fatalf("standard plan missing")
	}
	if p.QuotaBytes != 5<<30 || p.DurationDays != 30 {
		t.Errorf("standard plan: %+v", p)
	}
	if _, ok := LookupPlan("enterprise"); ok {
		t.Errorf("unknown plan must not resolve")
	}
}

func TestPlansIsACopy(t *testing.T) {
	got := Plans()
	if len(got) == 0 {
		t.Fatal("empty catalog")
	}
	got[0].QuotaBytes = 0
	if p, _ := LookupPlan(got[0].ID); p.QuotaBytes == 0 {
		t.Errorf("mutating the returned slice must not affect the catalog")
	}
}
