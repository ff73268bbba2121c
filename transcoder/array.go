package transcoder

import (
	"encoding/binary"
	stderrors "errors"
	"strconv"

	"github.com/wippyai/gpr-bridge/errors"
)

// StringArrayHeaderSize is the size of the {count, items} header.
const StringArrayHeaderSize = 8

// MaxStringArrayLen bounds the count field accepted from the library.
const MaxStringArrayLen = 1 << 20

// ReadStringArray converts the string array at ptr without freeing it.
// A zero count yields an empty, non-nil slice.
func ReadStringArray(mem Memory, codec *Codec, ptr uint32) ([]string, error) {
	if ptr == 0 {
		return nil, errors.NilPointer(errors.PhaseDecode, []string{"string_array"}, "string array")
	}

	count, err := mem.ReadU32(ptr)
	if err != nil {
		return nil, err
	}
	if count > MaxStringArrayLen {
		return nil, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Path("string_array", "count").
			Value(count).
			Detail("count %d exceeds limit %d", count, MaxStringArrayLen).
			Build()
	}
	out := make([]string, 0, count)
	if count == 0 {
		return out, nil
	}

	items, err := mem.ReadU32(ptr + 4)
	if err != nil {
		return nil, err
	}
	if items == 0 {
		return nil, errors.NilPointer(errors.PhaseDecode, []string{"string_array", "items"}, "items")
	}

	raw, err := mem.Read(items, count*4)
	if err != nil {
		return nil, err
	}
	// raw aliases linear memory; decoding only reads, so no copy is needed
	// until the next native call.
	for i := uint32(0); i < count; i++ {
		sp := binary.LittleEndian.Uint32(raw[i*4:])
		s, err := codec.ToManaged(mem, sp)
		if err != nil {
			return nil, withPath(err, "string_array", strconv.FormatUint(uint64(i), 10))
		}
		out = append(out, s)
	}
	return out, nil
}

// DrainStringArray converts the string array at ptr and then hands it to
// release. release runs exactly once for a non-null ptr, also when a
// conversion fails.
func DrainStringArray(mem Memory, codec *Codec, ptr uint32, release func(uint32) error) (out []string, err error) {
	if ptr == 0 {
		return nil, errors.NilPointer(errors.PhaseDecode, []string{"string_array"}, "string array")
	}
	defer func() {
		if rerr := release(ptr); rerr != nil {
			out = nil
			err = stderrors.Join(err, rerr)
		}
	}()
	return ReadStringArray(mem, codec, ptr)
}

func withPath(err error, path ...string) error {
	var e *errors.Error
	if stderrors.As(err, &e) && len(e.Path) == 0 {
		cp := *e
		cp.Path = path
		return &cp
	}
	return err
}
