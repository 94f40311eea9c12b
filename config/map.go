// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import "strings"

// Map is a flat key value store which also implements the [Source]
// interface. Nested maps are flattened into dot separated keys when
// applied.
type Map map[string]any

// Set implements the [Store] interface.
func (m Map) Set(key string, value any) error {
	m[key] = value
	return nil
}

// Apply implements the [Source] interface.
func (m Map) Apply(store Store) error {
	return walkMap(m, store, nil)
}

func walkMap(m map[string]any, store Store, chain []string) error {
	for k, v := range m {
		path := append(chain[:len(chain):len(chain)], k)
		switch x := v.(type) {
		case map[string]any:
			err := walkMap(x, store, path)
			if err != nil {
				return err
			}
		case Map:
			err := walkMap(x, store, path)
			if err != nil {
				return err
			}
		default:
			err := store.Set(strings.Join(path, "."), x)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
