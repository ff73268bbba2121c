package transcoder

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/wippyai/gpr-bridge/errors"
)

// lookupCharset resolves a WHATWG label. UTF-8 needs no conversion and
// resolves to a nil encoding.
func lookupCharset(label string) (encoding.Encoding, string, error) {
	label = strings.TrimSpace(strings.ToLower(label))
	switch label {
	case "", "utf-8", "utf8":
		return nil, "utf-8", nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", errors.New(errors.PhaseConfig, errors.KindUnsupported).
			Value(label).
			Cause(err).
			Detail("unknown charset %q", label).
			Build()
	}

	name, err := htmlindex.Name(enc)
	if err != nil {
		name = label
	}
	if name == "utf-8" {
		return nil, name, nil
	}
	return enc, name, nil
}

// KnownCharset reports whether label names a supported charset.
func KnownCharset(label string) bool {
	_, _, err := lookupCharset(label)
	return err == nil
}
