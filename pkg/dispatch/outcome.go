package dispatch

import (
	"fmt"

	"github.com/agentstation/rowsync/pkg/errors"
)

// ChunkResult is reported to chunk hooks after each submission.
type ChunkResult struct {
	Index   int
	Offset  int
	Size    int
	Applied int
	Err     error
}

// ChunkFailure identifies a chunk whose operations were not applied.
// Offset is the index of the chunk's first operation in the dispatched slice.
type ChunkFailure struct {
	Index  int
	Offset int
	Size   int
	Err    error
}

// Outcome accounts for every chunk of a dispatch.
type Outcome struct {
	Label   string
	Total   int
	Chunks  int
	Applied int
	Failed  []ChunkFailure
}

// HasFailures reports whether any chunk failed.
func (o *Outcome) HasFailures() bool {
	return len(o.Failed) > 0
}

// FailedItems returns the number of operations in failed chunks.
func (o *Outcome) FailedItems() int {
	n := 0
	for _, f := range o.Failed {
		n += f.Size
	}
	return n
}

// FailedRanges returns the [start, end) index ranges of failed operations.
func (o *Outcome) FailedRanges() [][2]int {
	out := make([][2]int, len(o.Failed))
	for i, f := range o.Failed {
		out[i] = [2]int{f.Offset, f.Offset + f.Size}
	}
	return out
}

// String implements fmt.Stringer.
func (o *Outcome) String() string {
	return fmt.Sprintf("%s: %d/%d applied in %d chunks, %d failed", o.Label, o.Applied, o.Total, o.Chunks, len(o.Failed))
}

// abandon records rest as failed with err. index and offset locate the
// first abandoned chunk.
func abandon[T any](o *Outcome, label string, rest [][]T, index, offset int, err error) {
	for i, chunk := range rest {
		o.Failed = append(o.Failed, ChunkFailure{
			Index:  index + i,
			Offset: offset,
			Size:   len(chunk),
			Err:    errors.NewChunkError(label, index+i, len(chunk), err),
		})
		offset += len(chunk)
	}
}
