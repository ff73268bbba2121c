package transcoder

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func FuzzStringRoundTrip(f *testing.F) {
	for _, tt := range stringCases {
		f.Add(tt.in)
	}
	f.Add("café ÿ")
	f.Add("€ not in latin-1")

	latin1, err := NewCodec(WithCharset("iso-8859-1"))
	if err != nil {
		f.Fatalf("NewCodec: %v", err)
	}
	codecs := []*Codec{UTF8, latin1}

	f.Fuzz(func(t *testing.T, s string) {
		// Only text a native string can carry round-trips.
		if !utf8.ValidString(s) || strings.IndexByte(s, 0) >= 0 {
			t.Skip()
		}

		for _, codec := range codecs {
			if _, err := codec.Encode(s); err != nil {
				continue
			}

			lib, alloc := newTestLib(t)
			mem := lib.Memory()
			scope := NewScope(alloc)

			ptr, err := codec.ToNative(scope, mem, s)
			if err != nil {
				t.Fatalf("%s: ToNative: %v", codec.Charset(), err)
			}
			got, err := codec.ToManaged(mem, ptr)
			if err != nil {
				t.Fatalf("%s: ToManaged: %v", codec.Charset(), err)
			}
			if got != s {
				t.Errorf("%s: round trip: got %q, want %q", codec.Charset(), got, s)
			}

			if err := scope.FreeAndRelease(); err != nil {
				t.Fatalf("%s: free: %v", codec.Charset(), err)
			}
			if n := lib.LiveAllocations(); n != 0 {
				t.Errorf("%s: live allocations after free: %d", codec.Charset(), n)
			}
		}
	})
}
