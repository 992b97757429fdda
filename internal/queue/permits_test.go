package queue

import "testing"

func TestPermitsAcquireRelease(t *testing.T) {
	p := NewPermits(2)

	if p.Cap() != 2 {
		t.Fatalf("got cap %d, want 2", p.Cap())
	}
	if p.Available() != 2 {
		t.Fatalf("got %d available, want 2", p.Available())
	}

	if !p.TryAcquire() || !p.TryAcquire() {
		t.Fatal("expected both permits to be acquirable")
	}
	if p.TryAcquire() {
		t.Fatal("acquired a permit from an exhausted pool")
	}
	if p.Available() != 0 {
		t.Fatalf("got %d available, want 0", p.Available())
	}

	p.Release()
	if p.Available() != 1 {
		t.Fatalf("got %d available after release, want 1", p.Available())
	}
	if !p.TryAcquire() {
		t.Fatal("expected released permit to be acquirable")
	}
}

func TestPermitsSurplusReleaseDropped(t *testing.T) {
	p := NewPermits(1)

	p.Release()
	p.Release()

	if p.Available() != 1 {
		t.Fatalf("got %d available, want pool capped at 1", p.Available())
	}
}
