// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/z5labs/harbor/internal/try"

	"github.com/magiconair/properties"
)

// InvalidPropertyError is returned for a "key=value" pair without a key.
type InvalidPropertyError struct {
	Line int
	Text string
}

// Error implements the error interface.
func (e InvalidPropertyError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid property on line %d: %q", e.Line, e.Text)
	}
	return fmt.Sprintf("invalid property: %q", e.Text)
}

// Properties is a Source over "key=value" definitions, typically
// collected from repeated -D command line flags.
type Properties []string

// FromProperties returns a Source for the given "key=value" pairs.
func FromProperties(pairs ...string) Properties {
	return Properties(pairs)
}

// Apply implements the Source interface. A pair without "=" sets the
// key to "true", mirroring a bare -Dflag.
func (ps Properties) Apply(store Store) error {
	for _, p := range ps {
		k, v, _ := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			return InvalidPropertyError{Text: p}
		}
		if !strings.Contains(p, "=") {
			v = "true"
		}
		err := store.Set(k, v)
		if err != nil {
			return err
		}
	}
	return nil
}

// InvalidPropertiesFileError is returned when a properties file cannot
// be parsed.
type InvalidPropertiesFileError struct {
	Cause error
}

// Error implements the error interface.
func (e InvalidPropertiesFileError) Error() string {
	return fmt.Sprintf("failed to parse properties file: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e InvalidPropertiesFileError) Unwrap() error {
	return e.Cause
}

// PropertiesFile is a Source reading a Java style properties file:
// '#' and '!' comments, '=', ':' or whitespace separators, backslash
// escapes and line continuations. ${key} references are left as is.
type PropertiesFile struct {
	r io.Reader
}

// FromPropertiesFile returns a Source reading r as UTF-8. If r is an
// [io.Closer] it is closed once read.
func FromPropertiesFile(r io.Reader) PropertiesFile {
	return PropertiesFile{r: r}
}

// Apply implements the Source interface. Keys are set in file order.
func (src PropertiesFile) Apply(store Store) (err error) {
	defer try.Close(&err, src.r)

	b, err := io.ReadAll(src.r)
	if err != nil {
		return err
	}

	loader := &properties.Loader{
		Encoding:         properties.UTF8,
		DisableExpansion: true,
	}
	props, err := loader.LoadBytes(b)
	if err != nil {
		return InvalidPropertiesFileError{Cause: err}
	}

	for _, k := range props.Keys() {
		v, _ := props.Get(k)
		if strings.TrimSpace(k) == "" {
			return InvalidPropertyError{Text: k + "=" + v}
		}

		err = store.Set(k, v)
		if err != nil {
			return err
		}
	}
	return nil
}
