package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Error policies accepted by Encode.
const (
	ErrorsStrict            = "strict"
	ErrorsReplace           = "replace"
	ErrorsIgnore            = "ignore"
	ErrorsXMLCharRefReplace = "xmlcharrefreplace"
)

// Charset returns the canonical WHATWG name for charset.
func Charset(charset string) (string, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	return htmlindex.Name(enc)
}

// Encode converts s to charset. Characters the charset cannot represent are
// handled according to errorsPolicy, which defaults to strict.
func Encode(s, charset, errorsPolicy string) ([]byte, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return []byte(s), nil
	}

	switch strings.ToLower(errorsPolicy) {
	case "", ErrorsStrict:
		return enc.NewEncoder().Bytes([]byte(s))
	case ErrorsReplace:
		return encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(s))
	case ErrorsXMLCharRefReplace:
		return encoding.HTMLEscapeUnsupported(enc.NewEncoder()).Bytes([]byte(s))
	case ErrorsIgnore:
		var out []byte
		encoder := enc.NewEncoder()
		for _, r := range s {
			b, err := encoder.Bytes([]byte(string(r)))
			if err != nil {
				continue
			}
			out = append(out, b...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown encoding errors policy %q", errorsPolicy)
	}
}
