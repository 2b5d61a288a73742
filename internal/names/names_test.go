package names

import "testing"

func TestBuildAndParseRoundTrip(t *testing.T) {
	b := NewBuilder()
	idxFoo := b.Intern("foo")
	idxBar := b.Intern("bar")
	idxFoo2 := b.Intern("foo")

	if idxFoo != idxFoo2 {
		t.Fatalf("expected Intern to dedupe: %d != %d", idxFoo, idxFoo2)
	}

	data := b.Build()
	tbl, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	for _, tc := range []struct {
		idx  Index
		want string
	}{
		{idxFoo, "foo"},
		{idxBar, "bar"},
	} {
		got, err := tbl.String(tc.idx)
		if err != nil {
			t.Fatalf("String(%d): %v", tc.idx, err)
		}
		if got != tc.want {
			t.Fatalf("String(%d) = %q, want %q", tc.idx, got, tc.want)
		}
	}

	if idx, ok := tbl.Find("foo"); !ok || idx != idxFoo {
		t.Fatalf("Find(foo) = %d, %v; want %d, true", idx, ok, idxFoo)
	}
	if _, ok := tbl.Find("missing"); ok {
		t.Fatalf("Find(missing) unexpectedly found")
	}
}

func TestParseRejectsBadSignature(t *testing.T) {
	data := make([]byte, 16)
	if _, err := Parse(data); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}
