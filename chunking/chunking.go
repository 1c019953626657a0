// Package chunking splits large values into content-defined, fixed-size or
// rolling-hash delimited chunks.
package chunking

import (
	"errors"
	"fmt"
)

// ErrInvalidPolicy is returned by Policy.Validate.
var ErrInvalidPolicy = errors.New("chunking: invalid policy")

// Strategy names a chunking algorithm.
type Strategy string

// Supported strategies.
const (
	None           Strategy = ""
	ContentDefined Strategy = "content-defined"
	FixedSize      Strategy = "fixed-size"
	RollingHash    Strategy = "rolling-hash"
)

// Policy is a chunking strategy with its parameters. Only the fields
// relevant to the selected strategy are consulted.
type Policy struct {
	Strategy Strategy `json:"strategy,omitempty"`

	// content-defined
	MaxInlineValueSize int `json:"maxInlineValueSize,omitempty"`
	MinChunkSize       int `json:"minChunkSize,omitempty"`
	AvgChunkSize       int `json:"avgChunkSize,omitempty"`
	MaxChunkSize       int `json:"maxChunkSize,omitempty"`

	// fixed-size
	ChunkSize int `json:"chunkSize,omitempty"`

	// rolling-hash
	WindowSize int `json:"windowSize,omitempty"`
	MinSize    int `json:"minSize,omitempty"`
	AvgSize    int `json:"avgSize,omitempty"`
	MaxSize    int `json:"maxSize,omitempty"`
}

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	switch p.Strategy {
	case None:
		return nil
	case ContentDefined:
		if p.MinChunkSize < 64 || p.AvgChunkSize < 256 || p.MaxChunkSize < 1024 {
			return fmt.Errorf("%w: content-defined sizes must be at least 64/256/1024, got %d/%d/%d",
				ErrInvalidPolicy, p.MinChunkSize, p.AvgChunkSize, p.MaxChunkSize)
		}
		if p.MinChunkSize >= p.AvgChunkSize || p.AvgChunkSize >= p.MaxChunkSize {
			return fmt.Errorf("%w: content-defined sizes must satisfy min < avg < max", ErrInvalidPolicy)
		}
		if p.MaxInlineValueSize < 0 {
			return fmt.Errorf("%w: negative inline threshold", ErrInvalidPolicy)
		}
	case FixedSize:
		if p.ChunkSize < 1 {
			return fmt.Errorf("%w: chunk size must be positive", ErrInvalidPolicy)
		}
	case RollingHash:
		if p.WindowSize < 1 || p.MinSize < p.WindowSize {
			return fmt.Errorf("%w: window size must be positive and not exceed min size", ErrInvalidPolicy)
		}
		if p.MinSize >= p.AvgSize || p.AvgSize >= p.MaxSize {
			return fmt.Errorf("%w: rolling-hash sizes must satisfy min < avg < max", ErrInvalidPolicy)
		}
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidPolicy, p.Strategy)
	}
	return nil
}

// InlineLimit returns the largest value size that is stored inline.
// Values beyond the limit are chunked. Zero means never chunk.
func (p Policy) InlineLimit() int {
	switch p.Strategy {
	case ContentDefined:
		if p.MaxInlineValueSize > 0 {
			return p.MaxInlineValueSize
		}
		return p.MaxChunkSize
	case FixedSize:
		return p.ChunkSize
	case RollingHash:
		return p.MaxSize
	}
	return 0
}

// ShouldChunk returns true if a value of the given size must be chunked.
func (p Policy) ShouldChunk(size int) bool {
	limit := p.InlineLimit()
	return limit > 0 && size > limit
}

// Split splits data into chunks. Chunks share memory with data. The
// result is a pure function of the policy and data.
func (p Policy) Split(data []byte) ([][]byte, error) {
	switch p.Strategy {
	case ContentDefined:
		return splitContentDefined(data, p)
	case FixedSize:
		return splitFixed(data, p.ChunkSize), nil
	case RollingHash:
		return splitRolling(data, p), nil
	case None:
		return [][]byte{data}, nil
	}
	return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidPolicy, p.Strategy)
}
