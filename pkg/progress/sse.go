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
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
)

// DefaultStream is the SSE stream snapshots are published on.
const DefaultStream = "progress"

// SSEHandler publishes snapshots as server-sent events. Mount Server() on an
// HTTP mux; clients subscribe with ?stream=progress.
type SSEHandler struct {
	server *sse.Server
	stream string
	logger *zap.Logger
}

// NewSSEHandler creates the SSE server and its stream.
func NewSSEHandler(logger *zap.Logger) *SSEHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := sse.New()
	server.AutoStream = false
	server.CreateStream(DefaultStream)
	return &SSEHandler{server: server, stream: DefaultStream, logger: logger}
}

// Server returns the http.Handler serving the stream.
func (h *SSEHandler) Server() http.Handler { return h.server }

// OnProgress publishes s as a JSON event named "progress".
func (h *SSEHandler) OnProgress(s Snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		h.logger.Warn("Failed to encode progress snapshot", zap.Error(err))
		return
	}
	h.server.Publish(h.stream, &sse.Event{
		ID:    []byte(strconv.FormatUint(s.Seq, 10)),
		Event: []byte("progress"),
		Data:  data,
	})
}

// Close disconnects all subscribers.
func (h *SSEHandler) Close() {
	h.server.Close()
}

var _ Handler = (*SSEHandler)(nil)
