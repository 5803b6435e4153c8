package friend

import "testing"

func TestParseResponse(t *testing.T) {
	if s, err := ParseResponse("accepted"); err != nil || s != StatusAccepted {
		t.Fatalf("accepted: %v %v", s, err)
	}
	if s, err := ParseResponse("Rejected"); err != nil || s != StatusRejected {
		t.Fatalf("rejected: %v %v", s, err)
	}
	if _, err := ParseResponse("Pending"); err == nil {
		t.Fatal("pending is not a valid response")
	}
}

func TestConnectionHelpers(t *testing.T) {
	c := Connection{User1: 3, User2: 9}
	if !c.Involves(3) || !c.Involves(9) || c.Involves(4) {
		t.Fatal("Involves mismatch")
	}
	if c.Other(3) != 9 || c.Other(9) != 3 {
		t.Fatal("Other mismatch")
	}
	if a, b := Pair(9, 3); a != 3 || b != 9 {
		t.Fatalf("Pair = %d, %d", a, b)
	}
}
