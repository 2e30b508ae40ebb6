// Package compression provides the codecs used for snapshot and WAL
// payload compression.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm is a single compression codec.
type Algorithm interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Name() string
}

// Engine holds the registered codecs and resolves them by name.
type Engine struct {
	algorithms map[string]Algorithm
}

// NewEngine creates an engine with all supported codecs registered.
func NewEngine() *Engine {
	e := &Engine{algorithms: make(map[string]Algorithm)}
	e.register(&NoneAlgorithm{})
	e.register(&SnappyAlgorithm{})
	e.register(&LZ4Algorithm{})
	e.register(&ZSTDAlgorithm{})
	return e
}

func (e *Engine) register(algo Algorithm) {
	e.algorithms[algo.Name()] = algo
}

// Get resolves an algorithm by name.
func (e *Engine) Get(name string) (Algorithm, error) {
	algo, ok := e.algorithms[name]
	if !ok {
		return nil, fmt.Errorf("compression algorithm %q not found", name)
	}
	return algo, nil
}

// Compress compresses data with the named algorithm.
func (e *Engine) Compress(data []byte, name string) ([]byte, error) {
	algo, err := e.Get(name)
	if err != nil {
		return nil, err
	}
	compressed, err := algo.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}
	return compressed, nil
}

// Decompress decompresses data written by the named algorithm.
func (e *Engine) Decompress(data []byte, name string) ([]byte, error) {
	algo, err := e.Get(name)
	if err != nil {
		return nil, err
	}
	decompressed, err := algo.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return decompressed, nil
}

// NoneAlgorithm passes data through untouched.
type NoneAlgorithm struct{}

func (a *NoneAlgorithm) Name() string                             { return "none" }
func (a *NoneAlgorithm) Compress(data []byte) ([]byte, error)     { return data, nil }
func (a *NoneAlgorithm) Decompress(data []byte) ([]byte, error)   { return data, nil }

// SnappyAlgorithm implements Snappy block compression.
type SnappyAlgorithm struct{}

func (a *SnappyAlgorithm) Name() string { return "snappy" }

func (a *SnappyAlgorithm) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (a *SnappyAlgorithm) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

// LZ4Algorithm implements LZ4 frame compression.
type LZ4Algorithm struct{}

func (a *LZ4Algorithm) Name() string { return "lz4" }

func (a *LZ4Algorithm) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *LZ4Algorithm) Decompress(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(reader)
}

// ZSTDAlgorithm implements zstd compression.
type ZSTDAlgorithm struct{}

func (a *ZSTDAlgorithm) Name() string { return "zstd" }

func (a *ZSTDAlgorithm) Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func (a *ZSTDAlgorithm) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}
