package chunking

import (
	"bytes"
	"io"
	"math/bits"

	"github.com/chmduquesne/rollinghash/buzhash64"
	fastcdc "github.com/jotfs/fastcdc-go"
)

func splitFixed(data []byte, size int) [][]byte {
	chunks := make([][]byte, 0, len(data)/size+1)
	for len(data) > size {
		chunks = append(chunks, data[:size])
		data = data[size:]
	}
	return append(chunks, data)
}

func splitContentDefined(data []byte, p Policy) ([][]byte, error) {
	chunker, err := fastcdc.NewChunker(bytes.NewReader(data), fastcdc.Options{
		MinSize:     p.MinChunkSize,
		AverageSize: p.AvgChunkSize,
		MaxSize:     p.MaxChunkSize,
	})
	if err != nil {
		return nil, err
	}

	var chunks [][]byte
	var offset int
	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		// chunk.Data is only valid until the next call, slice data instead
		chunks = append(chunks, data[offset:offset+chunk.Length])
		offset += chunk.Length
	}
	if len(chunks) == 0 {
		chunks = append(chunks, data)
	}
	return chunks, nil
}

func splitRolling(data []byte, p Policy) [][]byte {
	mask := uint64(1)<<uint(bits.Len(uint(p.AvgSize))-1) - 1

	var chunks [][]byte
	for len(data) != 0 {
		n := rollingCut(data, p, mask)
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	if len(chunks) == 0 {
		chunks = append(chunks, data)
	}
	return chunks
}

func rollingCut(data []byte, p Policy, mask uint64) int {
	if len(data) <= p.MinSize {
		return len(data)
	}

	max := p.MaxSize
	if max > len(data) {
		max = len(data)
	}

	h := buzhash64.New()
	_, _ = h.Write(data[p.MinSize-p.WindowSize : p.MinSize])
	for i := p.MinSize; i < max; i++ {
		h.Roll(data[i])
		if h.Sum64()&mask == 0 {
			return i + 1
		}
	}
	return max
}
