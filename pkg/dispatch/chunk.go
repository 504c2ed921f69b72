package dispatch

import "github.com/agentstation/rowsync/pkg/errors"

// Chunk splits items into ordered consecutive chunks of at most size
// elements. Concatenating the chunks yields items. Empty input yields no
// chunks.
func Chunk[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, errors.NewValidationError("chunk_size", size, "must be positive")
	}
	if len(items) == 0 {
		return nil, nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks, nil
}
