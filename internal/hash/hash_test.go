package hash

import "testing"

// The reference vectors are U32 reduced modulo 0x3ffff.
func TestU32Vectors(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want uint32
	}{
		{"empty", []byte(""), 0x00000c09},
		{"hello-lower", []byte("hello"), 0x00019fe2},
		{"hello-upper", []byte("HELLO"), 0x00019fe2},
		{"hello-world", []byte("Hello, World"), 0x0003c00b},
		// Remainder-3 tail: exercises the u16-then-lone-byte XOR path
		// separately from the combined-word path above.
		{"remainder-3", []byte{1, 2, 3}, 0x00000e0b},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := U32(c.in) % 0x3ffff; got != c.want {
				t.Fatalf("U32(%q) %% 0x3ffff = 0x%08x, want 0x%08x", c.in, got, c.want)
			}
		})
	}
}

func TestU32CaseInsensitiveOnASCII(t *testing.T) {
	if U32([]byte("hello")) != U32([]byte("HELLO")) {
		t.Fatalf("expected case-insensitive match for ASCII input")
	}
}
