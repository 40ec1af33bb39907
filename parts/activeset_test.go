package parts

import "testing"

func TestAddSupersedesContained(t *testing.T) {
	s := NewActivePartSet()
	if err := s.Add("p_1_1_0"); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("p_2_2_0"); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("p_1_2_1"); err != nil { // covers both
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 member after supersession, got %d", s.Len())
	}
	if got := s.GetContainingPart("p_1_1_0"); got != "p_1_2_1" {
		t.Fatalf("got %q", got)
	}
}

func TestAddNoOpWhenAlreadyContained(t *testing.T) {
	s := NewActivePartSet()
	_ = s.Add("p_1_10_1")
	_ = s.Add("p_3_5_0")
	if s.Len() != 1 {
		t.Fatalf("expected contained add to be a no-op, got len %d", s.Len())
	}
}

func TestGetContainingPartFallsBackToSelf(t *testing.T) {
	s := NewActivePartSet()
	if got := s.GetContainingPart("p_1_1_0"); got != "p_1_1_0" {
		t.Fatalf("got %q", got)
	}
}

func TestContainsPredicate(t *testing.T) {
	if !Contains("p_0_99_0", "p_42_42_0") {
		t.Fatal("expected containment")
	}
	if Contains("p_0_10_0", "p_42_42_0") {
		t.Fatal("expected no containment across disjoint ranges")
	}
	if Contains("p_0_10_0", "q_1_1_0") {
		t.Fatal("expected no containment across partitions")
	}
}

func TestInvariantNoOverlap(t *testing.T) {
	s := NewActivePartSet()
	_ = s.Add("p_1_5_0")
	_ = s.Add("p_6_10_0")
	if s.Len() != 2 {
		t.Fatalf("expected two disjoint members, got %d", s.Len())
	}
	_ = s.Add("p_1_10_1")
	if s.Len() != 1 {
		t.Fatalf("expected merge into single covering member, got %d", s.Len())
	}
}
