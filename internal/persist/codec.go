// Package persist provides codec-based file persistence for exported state:
// dead-letter jobs, status snapshots, and pipeline results.
package persist

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

// File extensions for supported codecs.
const (
	jsonExtension    = ".json"
	lz4JSONExtension = ".json.lz4"
)

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec.
	Extension() string
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	decoder := json.NewDecoder(r)

	err := decoder.Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for JSON files.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// LZ4JSONCodec implements Codec as compact JSON inside an LZ4 frame, for
// exports that may carry many thousands of records.
type LZ4JSONCodec struct{}

// NewLZ4JSONCodec creates an lz4-compressed JSON codec.
func NewLZ4JSONCodec() *LZ4JSONCodec {
	return &LZ4JSONCodec{}
}

// Encode implements Codec.Encode using JSON inside an LZ4 frame.
func (c *LZ4JSONCodec) Encode(w io.Writer, state any) error {
	compressor := lz4.NewWriter(w)

	err := json.NewEncoder(compressor).Encode(state)
	if err != nil {
		return fmt.Errorf("lz4 json encode: %w", err)
	}

	closeErr := compressor.Close()
	if closeErr != nil {
		return fmt.Errorf("lz4 flush: %w", closeErr)
	}

	return nil
}

// Decode implements Codec.Decode for LZ4-framed JSON.
func (c *LZ4JSONCodec) Decode(r io.Reader, state any) error {
	err := json.NewDecoder(lz4.NewReader(r)).Decode(state)
	if err != nil {
		return fmt.Errorf("lz4 json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for LZ4-framed JSON files.
func (c *LZ4JSONCodec) Extension() string {
	return lz4JSONExtension
}

// CodecForPath picks the codec matching a target file name.
func CodecForPath(path string) Codec {
	if filepath.Ext(path) == ".lz4" {
		return NewLZ4JSONCodec()
	}

	return NewJSONCodec()
}

// SaveState saves the given state to a file in the specified directory.
// The filename is constructed from the basename and the codec's extension.
func SaveState(dir, basename string, codec Codec, state any) error {
	filename := basename + codec.Extension()
	path := filepath.Join(dir, filename)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	defer file.Close()

	err = codec.Encode(file, state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	return nil
}

// LoadState loads state from a file in the specified directory.
// The filename is constructed from the basename and the codec's extension.
// The state parameter must be a pointer to the target struct.
func LoadState(dir, basename string, codec Codec, state any) error {
	filename := basename + codec.Extension()
	path := filepath.Join(dir, filename)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}

// WriteFile encodes state straight to path with the codec matching its
// extension. Used by CLI exports where the user names the target file.
func WriteFile(path string, state any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	err = CodecForPath(path).Encode(file, state)
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}

	return nil
}
