package pipeline

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// File is one item flowing through a pipeline.
//
// Path is absolute. Base is the directory the source glob was rooted at, so the
// relative path (Path minus Base) is preserved when the file is written by Dest.
type File struct {
	Path     string
	Base     string
	Contents []byte
	Mode     fs.FileMode
	ModTime  time.Time
}

// Relative returns the path of the file below its base, using OS separators.
func (f *File) Relative() string {
	rel, err := filepath.Rel(f.Base, f.Path)
	if err != nil {
		return filepath.Base(f.Path)
	}
	return rel
}

// Ext returns the file extension including the dot.
func (f *File) Ext() string { return filepath.Ext(f.Path) }

// SetRelative moves the file to rel below its base.
func (f *File) SetRelative(rel string) {
	f.Path = filepath.Join(f.Base, filepath.FromSlash(rel))
}

// SetExt replaces the extension. ext must include the leading dot.
func (f *File) SetExt(ext string) {
	f.Path = strings.TrimSuffix(f.Path, filepath.Ext(f.Path)) + ext
}

// Clone returns a deep copy.
func (f *File) Clone() *File {
	c := *f
	c.Contents = append([]byte(nil), f.Contents...)
	return &c
}
