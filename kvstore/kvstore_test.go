package kvstore

import "testing"

func TestSetGetDelete(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	const dn = "safSg=SG1,safApp=App1"
	if _, ok, err := s.Get(dn, SURestartProb); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	if err := s.Set(dn, SURestartProb, 42); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(dn, SURestartProb)
	if err != nil || !ok || v != 42 {
		t.Fatalf("Get after Set: v=%d ok=%v err=%v", v, ok, err)
	}

	if err := s.Delete(dn, SURestartProb); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := s.Get(dn, SURestartProb); err != nil || ok {
		t.Fatalf("Get after Delete: ok=%v err=%v", ok, err)
	}
}

func TestAllScansPrefix(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Set("safSg=SG1,safApp=App1", CompRestartProb, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("safSg=SG1,safApp=App1", SURestartProb, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("safSg=SG2,safApp=App1", CompRestartProb, 3); err != nil {
		t.Fatal(err)
	}

	all, err := s.All("safSg=SG1")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All returned %d entries, want 2: %v", len(all), all)
	}
}
