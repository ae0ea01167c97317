package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestPaginate(t *testing.T) {
	cases := []struct {
		page, limit         int
		wantP, wantL, wantO int
	}{
		{0, 0, 1, DefaultPageSize, 0},
		{-3, 10, 1, 10, 0},
		{3, 10, 3, 10, 20},
		{2, 1000, 2, MaxPageSize, MaxPageSize},
	}
	for _, tc := range cases {
		p, l, o := Paginate(tc.page, tc.limit)
		if p != tc.wantP || l != tc.wantL || o != tc.wantO {
			t.Fatalf("Paginate(%d,%d) = %d,%d,%d; want %d,%d,%d", tc.page, tc.limit, p, l, o, tc.wantP, tc.wantL, tc.wantO)
		}
	}
}

func TestTotalPages(t *testing.T) {
	if TotalPages(0, 20) != 0 || TotalPages(1, 20) != 1 || TotalPages(20, 20) != 1 || TotalPages(21, 20) != 2 {
		t.Fatalf("TotalPages boundary mismatch")
	}
	if TotalPages(5, 0) != 0 {
		t.Fatalf("TotalPages with zero limit should be 0")
	}
}

func TestParseID(t *testing.T) {
	if n, ok := ParseID("1234567890123"); !ok || n != 1234567890123 {
		t.Fatalf("ParseID valid failed: %d %v", n, ok)
	}
	for _, s := range []string{"", "0", "-1", "abc", "1.5"} {
		if _, ok := ParseID(s); ok {
			t.Fatalf("ParseID(%q) should fail", s)
		}
	}
}
