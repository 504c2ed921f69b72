package sync

import (
	gosync "sync"

	"github.com/agentstation/rowsync/pkg/dispatch"
)

// Hook function types for run events
type (
	// StageHook is called when a run enters a stage
	StageHook func(job string, stage Stage)

	// ChunkHook is called after every dispatched chunk
	ChunkHook func(job, label string, chunk dispatch.ChunkResult)

	// CompleteHook is called once with the final report, including aborted runs
	CompleteHook func(result *Result)
)

// Hooks manages event callbacks for sync runs.
type Hooks struct {
	mu         gosync.RWMutex
	onStage    []StageHook
	onChunk    []ChunkHook
	onComplete []CompleteHook
}

// NewHooks creates an empty Hooks set.
func NewHooks() *Hooks {
	return &Hooks{}
}

// OnStage registers a callback for stage transitions
func (h *Hooks) OnStage(fn StageHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStage = append(h.onStage, fn)
}

// OnChunk registers a callback for dispatched chunks
func (h *Hooks) OnChunk(fn ChunkHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChunk = append(h.onChunk, fn)
}

// OnComplete registers a callback for finished runs
func (h *Hooks) OnComplete(fn CompleteHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onComplete = append(h.onComplete, fn)
}

func (h *Hooks) stage(job string, stage Stage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onStage {
		fn(job, stage)
	}
}

func (h *Hooks) chunk(job, label string, res dispatch.ChunkResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onChunk {
		fn(job, label, res)
	}
}

func (h *Hooks) complete(result *Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onComplete {
		fn(result)
	}
}
