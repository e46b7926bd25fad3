// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"fmt"
	"io"
	"sync"

	"github.com/pdiddy/mdconvert/pkg/types"
)

// Level classifies a Notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a short user-facing message about the workflow.
type Notice struct {
	Level   Level  `json:"level" msgpack:"level"`
	Title   string `json:"title" msgpack:"title"`
	Message string `json:"message" msgpack:"message"`
}

// Notifier receives the controller's outbound events.
type Notifier interface {
	// Notify delivers a transient info or error message.
	Notify(n Notice)

	// BatchReady delivers a completed batch.
	BatchReady(b types.Batch)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(Notice)          {}
func (NopNotifier) BatchReady(types.Batch) {}

// WriterNotifier prints events as status lines: one line per notice, and for
// a batch one line per file followed by a summary.
type WriterNotifier struct {
	W io.Writer
}

func (n WriterNotifier) Notify(no Notice) {
	fmt.Fprintf(n.W, "%s: %s\n", no.Title, no.Message)
}

func (n WriterNotifier) BatchReady(b types.Batch) {
	for _, r := range b.Results {
		if r.Succeeded {
			fmt.Fprintf(n.W, "converted: %s\n", r.SourceFile.Name)
		} else {
			fmt.Fprintf(n.W, "failed:  %s\n", r.SourceFile.Name)
		}
	}
	fmt.Fprintf(n.W, "\nBatch summary: %d converted, %d failed (total: %d)\n",
		b.Converted, b.Failed(), b.Total)
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
	batches []types.Batch
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) BatchReady(b types.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

// Notices returns the recorded notices in arrival order.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Batches returns the recorded batches in arrival order.
func (r *Recorder) Batches() []types.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Batch(nil), r.batches...)
}

// multi fans events out to several notifiers.
type multi []Notifier

// Tee returns a Notifier that forwards every event to each of ns.
func Tee(ns ...Notifier) Notifier {
	return multi(ns)
}

func (m multi) Notify(n Notice) {
	for _, x := range m {
		x.Notify(n)
	}
}

func (m multi) BatchReady(b types.Batch) {
	for _, x := range m {
		x.BatchReady(b)
	}
}
