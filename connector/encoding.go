// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// LookupEncoding resolves an IANA charset name or alias, e.g. "latin1"
// or "Shift_JIS".
func LookupEncoding(name string) (encoding.Encoding, error) {
	e, err := ianaindex.IANA.Encoding(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCharset, name)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s has no decoder", ErrUnsupportedCharset, name)
	}
	return e, nil
}

// normalizeEncoding returns the preferred MIME name of enc, falling back
// to its IANA name.
func normalizeEncoding(enc string) (string, error) {
	if enc == "" {
		return DefaultURIEncoding, nil
	}
	e, err := LookupEncoding(enc)
	if err != nil {
		return "", &ConfigurationError{
			Key:   "URIEncoding",
			Value: enc,
			Cause: err,
		}
	}
	if name, err := ianaindex.MIME.Name(e); err == nil && name != "" {
		return name, nil
	}
	name, err := ianaindex.IANA.Name(e)
	if err != nil {
		return "", &ConfigurationError{
			Key:   "URIEncoding",
			Value: enc,
			Cause: fmt.Errorf("%w: %s", ErrUnsupportedCharset, enc),
		}
	}
	return name, nil
}
