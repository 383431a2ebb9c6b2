// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileReader opens its file on the first Read.
type FileReader struct {
	fsys fs.FS
	path string

	mu     sync.Mutex
	f      fs.File
	err    error
	closed bool
}

// NewFileReader returns a reader for path within fsys.
func NewFileReader(fsys fs.FS, path string) *FileReader {
	return &FileReader{
		fsys: fsys,
		path: path,
	}
}

func (r *FileReader) file() (fs.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fs.ErrClosed
	}
	if r.f == nil && r.err == nil {
		r.f, r.err = r.fsys.Open(r.path)
	}
	return r.f, r.err
}

// Read implements the io.Reader interface.
func (r *FileReader) Read(b []byte) (int, error) {
	f, err := r.file()
	if err != nil {
		return 0, err
	}
	return f.Read(b)
}

// Close implements the io.Closer interface. A file which was never
// opened is not opened by Close.
func (r *FileReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// UnknownFormatError occurs if a config file extension, or a Document
// format, is not one of the supported ones.
type UnknownFormatError struct {
	Format string
}

// Error implements the error interface.
func (e UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown config format: %q", e.Format)
}

// FromFile returns a Source reading the config file at path. The
// format follows the extension: .yaml, .yml or .json. The file is
// rendered as a text/template with opts before being decoded.
func FromFile(path string, opts ...RenderTextTemplateOption) (Source, error) {
	var format Format
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".json":
		format = FormatJSON
	default:
		return nil, UnknownFormatError{Format: ext}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	r := NewFileReader(os.DirFS(filepath.Dir(abs)), filepath.Base(abs))
	return Document{
		format: format,
		r:      RenderTextTemplate(r, opts...),
	}, nil
}
