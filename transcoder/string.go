package transcoder

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/errors"
)

type Memory = gprbridge.Memory

// MaxStringLen bounds how far ToManaged scans for a terminating NUL.
const MaxStringLen = 16 << 20

// Codec converts text between Go strings and native byte buffers.
// The zero value is not usable; use NewCodec or UTF8.
type Codec struct {
	enc     encoding.Encoding
	charset string
	lossy   bool
}

// UTF8 is the strict UTF-8 codec.
var UTF8 = &Codec{charset: "utf-8"}

// CodecOption configures a Codec.
type CodecOption func(*codecConfig)

type codecConfig struct {
	charset string
	lossy   bool
}

// WithCharset selects the native charset by its WHATWG label
// (e.g. "iso-8859-1", "windows-1252"). Empty means UTF-8.
func WithCharset(name string) CodecOption {
	return func(c *codecConfig) {
		c.charset = name
	}
}

// WithLossy replaces undecodable input with U+FFFD and unencodable
// characters with a charset-specific substitute instead of failing.
func WithLossy() CodecOption {
	return func(c *codecConfig) {
		c.lossy = true
	}
}

// NewCodec creates a codec. Unknown charset labels are an error.
func NewCodec(opts ...CodecOption) (*Codec, error) {
	var cfg codecConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	enc, canonical, err := lookupCharset(cfg.charset)
	if err != nil {
		return nil, err
	}
	return &Codec{enc: enc, charset: canonical, lossy: cfg.lossy}, nil
}

// Charset returns the canonical charset name.
func (c *Codec) Charset() string {
	return c.charset
}

// Lossy reports whether the codec replaces invalid input.
func (c *Codec) Lossy() bool {
	return c.lossy
}

// ForCharset returns a codec for name that keeps c's lossy setting.
func (c *Codec) ForCharset(name string) (*Codec, error) {
	opts := []CodecOption{WithCharset(name)}
	if c.lossy {
		opts = append(opts, WithLossy())
	}
	return NewCodec(opts...)
}

// Relaxed returns a lossy variant of c.
func (c *Codec) Relaxed() *Codec {
	if c.lossy {
		return c
	}
	cp := *c
	cp.lossy = true
	return &cp
}

// Encode converts s to native bytes, without a terminator.
func (c *Codec) Encode(s string) ([]byte, error) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return nil, errors.New(errors.PhaseEncode, errors.KindEncoding).
			Value(i).
			Detail("text contains NUL at byte %d", i).
			Build()
	}

	if !utf8.ValidString(s) {
		if !c.lossy {
			return nil, errors.InvalidUTF8(errors.PhaseEncode, nil, []byte(s))
		}
		s = strings.ToValidUTF8(s, "\uFFFD")
	}

	if c.enc == nil {
		return []byte(s), nil
	}

	enc := c.enc.NewEncoder()
	if c.lossy {
		enc = encoding.ReplaceUnsupported(enc)
	}
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil, errors.Encoding(errors.PhaseEncode, c.charset, err)
	}
	return out, nil
}

// Decode converts native bytes to a Go string. The result never aliases b.
func (c *Codec) Decode(b []byte) (string, error) {
	if c.enc != nil {
		out, err := c.enc.NewDecoder().Bytes(b)
		if err != nil {
			if !c.lossy {
				return "", errors.Encoding(errors.PhaseDecode, c.charset, err)
			}
			out = decodeReplacing(c.enc.NewDecoder(), b)
		}
		b = out
	}

	if !utf8.Valid(b) {
		if !c.lossy {
			return "", errors.InvalidUTF8(errors.PhaseDecode, nil, b)
		}
		return strings.ToValidUTF8(string(b), "\uFFFD"), nil
	}
	return string(b), nil
}

// decodeReplacing runs dec over b, substituting U+FFFD for each byte the
// decoder rejects and resuming after it.
func decodeReplacing(dec *encoding.Decoder, b []byte) []byte {
	out := make([]byte, 0, len(b)+utf8.UTFMax)
	dst := make([]byte, 2*len(b)+utf8.UTFMax)
	for len(b) > 0 {
		nDst, nSrc, err := dec.Transform(dst, b, true)
		out = append(out, dst[:nDst]...)
		b = b[nSrc:]
		switch {
		case err == nil:
			return out
		case err == transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
			continue
		}
		out = append(out, "\uFFFD"...)
		if len(b) > 0 {
			b = b[1:]
		}
		dec.Reset()
	}
	return out
}

// ToNative writes s as a NUL-terminated buffer allocated through scope.
// The buffer lives until scope is freed.
func (c *Codec) ToNative(scope *Scope, mem Memory, s string) (uint32, error) {
	data, err := c.Encode(s)
	if err != nil {
		return 0, err
	}

	size := uint32(len(data)) + 1
	ptr, err := scope.Alloc(size)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, size)
	copy(buf, data)
	if err := mem.Write(ptr, buf); err != nil {
		return 0, err
	}
	return ptr, nil
}

// ToManaged copies the NUL-terminated string at ptr. A null pointer is "".
func (c *Codec) ToManaged(mem Memory, ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	raw, err := readCString(mem, ptr)
	if err != nil {
		return "", err
	}
	return c.Decode(raw)
}

// readCString returns the bytes at ptr up to, not including, the NUL.
// The slice may alias linear memory.
func readCString(mem Memory, ptr uint32) ([]byte, error) {
	if sizer, ok := mem.(gprbridge.MemorySizer); ok {
		size := sizer.Size()
		if ptr >= size {
			return nil, errors.OutOfBounds(errors.PhaseDecode, nil, ptr, 1)
		}
		limit := size - ptr
		if limit > MaxStringLen {
			limit = MaxStringLen
		}
		data, err := mem.Read(ptr, limit)
		if err != nil {
			return nil, err
		}
		n := bytes.IndexByte(data, 0)
		if n < 0 {
			return nil, unterminated(ptr)
		}
		return data[:n], nil
	}

	var out []byte
	for off := uint32(0); off < MaxStringLen; off++ {
		b, err := mem.ReadU8(ptr + off)
		if err != nil {
			return nil, err
		}
		if b == 0 {
			return out, nil
		}
		out = append(out, b)
	}
	return nil, unterminated(ptr)
}

func unterminated(ptr uint32) *errors.Error {
	return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
		Value(ptr).
		Detail("string at %#x has no terminator", ptr).
		Build()
}
