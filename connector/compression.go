// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import (
	"slices"
	"strings"
)

// DefaultCompressibleMimeTypes is used when compression is enabled
// without an explicit allow-list.
const DefaultCompressibleMimeTypes = "text/html,text/xml,text/plain,text/css,application/json,application/xml,text/javascript,application/javascript"

// EnableCompression turns on response compression for the given mime
// types, or for [DefaultCompressibleMimeTypes] if none are given.
func EnableCompression(spec Spec, mimeTypes []string) Spec {
	if len(mimeTypes) == 0 {
		mimeTypes = ParseMimeTypes(DefaultCompressibleMimeTypes)
	}

	out := spec.Clone()
	out.Compression = Compression{
		Enabled:   true,
		MimeTypes: slices.Clone(mimeTypes),
	}
	return out
}

// ParseMimeTypes splits a comma separated list, dropping blanks.
func ParseMimeTypes(csv string) []string {
	var types []string
	for _, t := range strings.Split(csv, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		types = append(types, t)
	}
	return types
}

// MimeTypeList joins the allow-list back into its configured form.
func (c Compression) MimeTypeList() string {
	return strings.Join(c.MimeTypes, ",")
}
