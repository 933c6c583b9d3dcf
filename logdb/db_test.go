package logdb

import "testing"

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestAddListDrop(t *testing.T) {
	d := newTestDB(t)

	e := &Entry{IP: "203.0.113.9", Platform: "Linux", OSName: "Ubuntu", BrowserName: "Firefox"}
	if err := d.Add(7, e); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := d.Add(7, &Entry{IP: "198.51.100.4"}); err != nil {
		t.Fatalf("add second: %v", err)
	}

	list, err := d.List(7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].IP != "203.0.113.9" {
		t.Fatalf("unexpected entries: %+v", list)
	}

	// Other files have their own tables.
	other, err := d.List(8)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("entries leaked across files: %+v", other)
	}

	if err := d.Drop(7); err != nil {
		t.Fatalf("drop: %v", err)
	}
	list, err = d.List(7)
	if err != nil {
		t.Fatalf("list after drop: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("entries survived drop: %+v", list)
	}
}

func TestPrune(t *testing.T) {
	d := newTestDB(t)

	if err := d.Add(1, &Entry{IP: "203.0.113.9"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Backdate the entry past the retention window.
	if _, err := d.Exec(`UPDATE log_1 SET created_at = datetime('now', '-10 days')`); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if err := d.Add(1, &Entry{IP: "198.51.100.4"}); err != nil {
		t.Fatalf("add fresh: %v", err)
	}

	n, err := d.Prune(7)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 pruned, got %d", n)
	}
	list, _ := d.List(1)
	if len(list) != 1 || list[0].IP != "198.51.100.4" {
		t.Fatalf("wrong entry pruned: %+v", list)
	}
}
