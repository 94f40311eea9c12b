// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package webapp

import (
	"errors"
	"io/fs"
	"path"
	"strings"
)

// ClassesPath is where the code root is mounted inside the resource tree.
const ClassesPath = "WEB-INF/classes"

// Mount places FS at Path within a [Resources] tree.
type Mount struct {
	Path string
	FS   fs.FS
}

// Resources overlays pre-resource mounts on top of a base tree. A file
// in a mount shadows a base file at the same path.
type Resources struct {
	pre  []Mount
	base fs.FS
}

// NewResources returns an overlay of pre on top of base. Mounts are
// consulted in order.
func NewResources(base fs.FS, pre ...Mount) *Resources {
	mounts := make([]Mount, 0, len(pre))
	for _, m := range pre {
		m.Path = strings.Trim(path.Clean("/"+m.Path), "/")
		mounts = append(mounts, m)
	}
	return &Resources{pre: mounts, base: base}
}

// Open implements [fs.FS].
func (r *Resources) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	for _, m := range r.pre {
		rel, ok := within(m.Path, name)
		if !ok {
			continue
		}
		f, err := m.FS.Open(rel)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return r.base.Open(name)
}

func within(mount, name string) (string, bool) {
	switch {
	case mount == "" || mount == ".":
		return name, true
	case name == mount:
		return ".", true
	case strings.HasPrefix(name, mount+"/"):
		return strings.TrimPrefix(name, mount+"/"), true
	}
	return "", false
}

// Public returns a view of r that hides the WEB-INF and META-INF
// directories.
func (r *Resources) Public() fs.FS {
	return publicFS{r}
}

type publicFS struct {
	fsys fs.FS
}

func (p publicFS) Open(name string) (fs.File, error) {
	if isPrivate(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return p.fsys.Open(name)
}

func isPrivate(name string) bool {
	first, _, _ := strings.Cut(name, "/")
	return strings.EqualFold(first, "WEB-INF") || strings.EqualFold(first, "META-INF")
}
