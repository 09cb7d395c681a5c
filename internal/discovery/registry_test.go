package discovery

import (
	"errors"
	"testing"
)

func TestRegisterConflictAcrossOwners(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(1, Entry{Name: "db@host1", Port: 9001}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := reg.Register(2, Entry{Name: "db@host1", Port: 9002})
	if !errors.Is(err, ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}
	// Same owner replaces.
	if err := reg.Register(1, Entry{Name: "db@host1", Port: 9003}); err != nil {
		t.Fatalf("re-register same owner: %v", err)
	}
	e, ok := reg.Lookup("db@host1")
	if !ok || e.Port != 9003 {
		t.Fatalf("lookup after replace: %+v ok=%v", e, ok)
	}
}

func TestNamesOmitHidden(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(1, Entry{Name: "db@host1", Port: 9001})
	_ = reg.Register(2, Entry{Name: "db_maint_77@host1", Port: 0, Hidden: true})

	names := reg.Names()
	if len(names) != 1 || names[0].Name != "db@host1" {
		t.Fatalf("names mismatch: %+v", names)
	}

	// Hidden entries still resolve by exact name.
	if _, ok := reg.Lookup("db_maint_77@host1"); !ok {
		t.Fatalf("hidden entry must be lookup-able")
	}
}

func TestReapOwnerDropsAllRegistrations(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(1, Entry{Name: "a@h", Port: 1})
	_ = reg.Register(1, Entry{Name: "b@h", Port: 2})
	_ = reg.Register(2, Entry{Name: "c@h", Port: 3})

	if reaped := reg.ReapOwner(1); reaped != 2 {
		t.Fatalf("reaped=%d want 2", reaped)
	}
	if reg.Count() != 1 {
		t.Fatalf("count=%d want 1", reg.Count())
	}
	if _, ok := reg.Lookup("c@h"); !ok {
		t.Fatalf("unrelated owner must survive reap")
	}
}

func TestDeregisterRequiresOwnership(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(1, Entry{Name: "a@h", Port: 1})
	if err := reg.Deregister(2, "a@h"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if err := reg.Deregister(1, "a@h"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
}
