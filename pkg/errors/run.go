package errors

import "fmt"

// ResourceError gives an operation on a named resource ("fetch page",
// "insert rows") to a lower-level failure.
type ResourceError struct {
	Operation string
	Resource  string
	ID        string
	Err       error
}

func NewResourceError(operation, resource, id string, err error) *ResourceError {
	return &ResourceError{Operation: operation, Resource: resource, ID: id, Err: err}
}

func (e *ResourceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Operation, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Operation, e.Resource, e.ID, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// ChunkError records the failure of one dispatched chunk. Label is the
// write kind, inserts or updates.
type ChunkError struct {
	Label string
	Index int
	Size  int
	Err   error
}

func NewChunkError(label string, index, size int, err error) *ChunkError {
	return &ChunkError{Label: label, Index: index, Size: size, Err: err}
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s chunk %d of %d rows: %v", e.Label, e.Index, e.Size, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// SyncError is returned when a run aborts. Stage is the stage that was
// executing; the partial result accompanies it.
type SyncError struct {
	Job   string
	Stage string
	Err   error
}

func NewSyncError(job, stage string, err error) *SyncError {
	return &SyncError{Job: job, Stage: stage, Err: err}
}

func (e *SyncError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("job %s aborted: %v", e.Job, e.Err)
	}
	return fmt.Sprintf("job %s aborted in %s: %v", e.Job, e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
