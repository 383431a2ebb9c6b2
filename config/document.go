// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/z5labs/switchboard/internal/try"

	"gopkg.in/yaml.v3"
)

// Format is the serialization of a config document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var unmarshalers = map[Format]func([]byte, any) error{
	FormatYAML: yaml.Unmarshal,
	FormatJSON: json.Unmarshal,
}

// Document is a Source read from a serialized config document. The
// reader is closed once applied if it implements io.Closer.
type Document struct {
	format Format
	r      io.Reader
}

// FromYaml returns a source which applies the YAML document read from r.
func FromYaml(r io.Reader) Document {
	return Document{format: FormatYAML, r: r}
}

// FromJson returns a source which applies the JSON document read from r.
func FromJson(r io.Reader) Document {
	return Document{format: FormatJSON, r: r}
}

// DecodeError occurs if a document is not valid in its format.
type DecodeError struct {
	Format Format
	Cause  error
}

// Error implements the error interface.
func (e DecodeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Format, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e DecodeError) Unwrap() error {
	return e.Cause
}

// Apply implements the Source interface.
func (d Document) Apply(store Store) (err error) {
	defer try.Close(&err, d.r)

	unmarshal, ok := unmarshalers[d.format]
	if !ok {
		return UnknownFormatError{Format: string(d.format)}
	}

	b, err := io.ReadAll(d.r)
	if err != nil {
		return err
	}

	var m map[string]any
	err = unmarshal(b, &m)
	if err != nil {
		return DecodeError{Format: d.format, Cause: err}
	}
	return Map(m).Apply(store)
}
