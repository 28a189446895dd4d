// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package progress

import (
	"sync"

	"go.uber.org/zap"
)

// Handler receives progress snapshots.
type Handler interface {
	OnProgress(s Snapshot)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(s Snapshot)

// OnProgress calls f(s).
func (f HandlerFunc) OnProgress(s Snapshot) { f(s) }

// Emitter delivers snapshots to a handler on its own goroutine. Publish
// never blocks: a snapshot not yet delivered is replaced by a newer one.
// Delivery order follows publish order and the last published snapshot is
// always delivered before Close returns.
type Emitter struct {
	handler Handler
	logger  *zap.Logger

	mu      sync.Mutex
	pending *Snapshot
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	delivered uint64
	coalesced uint64
}

// NewEmitter starts an emitter. A nil handler discards snapshots.
func NewEmitter(handler Handler, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Emitter{
		handler: handler,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go e.loop()
	return e
}

// Publish offers s for delivery. Publishing after Close is a no-op.
func (e *Emitter) Publish(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.pending != nil {
		e.coalesced++
	}
	e.pending = &s
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Close delivers the pending snapshot, if any, and stops the emitter.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	close(e.wake)
	e.mu.Unlock()
	<-e.done
}

// Stats returns the number of delivered and coalesced snapshots.
func (e *Emitter) Stats() (delivered, coalesced uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delivered, e.coalesced
}

func (e *Emitter) loop() {
	defer close(e.done)
	for range e.wake {
		e.drain()
	}
	e.drain()
}

func (e *Emitter) drain() {
	for {
		e.mu.Lock()
		s := e.pending
		e.pending = nil
		if s != nil {
			e.delivered++
		}
		e.mu.Unlock()
		if s == nil {
			return
		}
		e.deliver(*s)
	}
}

func (e *Emitter) deliver(s Snapshot) {
	if e.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Progress handler panicked",
				zap.String("runner_id", s.RunnerID),
				zap.Uint64("seq", s.Seq),
				zap.Any("panic", r))
		}
	}()
	e.handler.OnProgress(s)
}
