// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fsFunc func(string) (fs.File, error)

func (f fsFunc) Open(path string) (fs.File, error) {
	return f(path)
}

func TestFileReader(t *testing.T) {
	t.Run("will return the open error", func(t *testing.T) {
		t.Run("if the file cannot be opened", func(t *testing.T) {
			openErr := errors.New("failed to open")
			r := NewFileReader(fsFunc(func(string) (fs.File, error) {
				return nil, openErr
			}), "switchboard.yaml")

			_, err := io.ReadAll(r)
			assert.ErrorIs(t, err, openErr)
		})
	})

	t.Run("will not open the file", func(t *testing.T) {
		t.Run("if it is closed before being read", func(t *testing.T) {
			var opened bool
			r := NewFileReader(fsFunc(func(string) (fs.File, error) {
				opened = true
				return nil, errors.New("unexpected open")
			}), "switchboard.yaml")

			require.NoError(t, r.Close())
			assert.False(t, opened)

			_, err := r.Read(make([]byte, 1))
			assert.ErrorIs(t, err, fs.ErrClosed)
		})
	})

	t.Run("will read the file contents", func(t *testing.T) {
		fsys := fstest.MapFS{
			"switchboard.yaml": &fstest.MapFile{Data: []byte("listen: [8080]\n")},
		}
		r := NewFileReader(fsys, "switchboard.yaml")

		b, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "listen: [8080]\n", string(b))
		assert.NoError(t, r.Close())
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFromFile(t *testing.T) {
	t.Run("will return an UnknownFormatError", func(t *testing.T) {
		t.Run("if the extension is not supported", func(t *testing.T) {
			_, err := FromFile("switchboard.toml")

			var ferr UnknownFormatError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, ".toml", ferr.Format)
		})
	})

	t.Run("will decode the file by extension", func(t *testing.T) {
		testCases := []struct {
			Name    string
			Content string
		}{
			{Name: "switchboard.yaml", Content: "listen:\n  - \"{{ port }}\"\nenv: production\n"},
			{Name: "switchboard.yml", Content: "listen: [\"{{ port }}\"]\nenv: production\n"},
			{Name: "switchboard.json", Content: `{"listen": ["{{ port }}"], "env": "production"}`},
		}

		for _, testCase := range testCases {
			t.Run("if the file is "+testCase.Name, func(t *testing.T) {
				path := writeFile(t, testCase.Name, testCase.Content)

				src, err := FromFile(path, TemplateFunc("port", func() string { return "8443" }))
				require.NoError(t, err)

				m, err := Read(src)
				require.NoError(t, err)

				var cfg Listener
				require.NoError(t, m.Unmarshal(&cfg))
				assert.Equal(t, []string{"8443"}, cfg.Listen)
				assert.Equal(t, "production", cfg.Env)
			})
		}
	})

	t.Run("will return the open error on read", func(t *testing.T) {
		t.Run("if the file does not exist", func(t *testing.T) {
			src, err := FromFile(filepath.Join(t.TempDir(), "missing.yaml"))
			require.NoError(t, err)

			_, err = Read(src)
			assert.ErrorIs(t, err, fs.ErrNotExist)
		})
	})
}
