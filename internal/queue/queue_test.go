package queue

import "testing"

func TestAdmission_CapRejectsWhenFull(t *testing.T) {
	a := New(2)

	if _, err := a.Admit("1"); err != nil {
		t.Fatalf("Admit(1) = %v, want nil", err)
	}
	if _, err := a.Admit("2"); err != nil {
		t.Fatalf("Admit(2) = %v, want nil", err)
	}
	if _, err := a.Admit("3"); err != ErrFull {
		t.Fatalf("Admit(3) = %v, want ErrFull", err)
	}

	a.Release("1")
	if _, err := a.Admit("3"); err != nil {
		t.Fatalf("Admit(3) after release = %v, want nil", err)
	}
}

func TestAdmission_DuplicateAssetIDJoins(t *testing.T) {
	a := New(1)

	joined, err := a.Admit("42")
	if err != nil || joined {
		t.Fatalf("Admit(42) = (%v, %v), want (false, nil)", joined, err)
	}
	// Set is already at capacity (1), but the same asset id joins rather
	// than being rejected.
	joined, err = a.Admit("42")
	if err != nil || !joined {
		t.Fatalf("second Admit(42) = (%v, %v), want (true, nil)", joined, err)
	}
	if _, err := a.Admit("99"); err != ErrFull {
		t.Fatalf("Admit(99) = %v, want ErrFull (capacity still held by 42)", err)
	}

	a.Release("42") // first holder's release: second reference still live
	if got := a.Len(); got != 1 {
		t.Fatalf("Len() after one release = %d, want 1", got)
	}
	a.Release("42")
	if got := a.Len(); got != 0 {
		t.Fatalf("Len() after both releases = %d, want 0", got)
	}
}

func TestAdmission_Len(t *testing.T) {
	a := New(5)
	a.Admit("a")
	a.Admit("b")
	if got := a.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	a.Release("a")
	if got := a.Len(); got != 1 {
		t.Fatalf("Len() after release = %d, want 1", got)
	}
}
