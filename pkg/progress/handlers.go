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
	"go.uber.org/zap"
)

// LogHandler logs every snapshot at debug level and terminal snapshots at
// info level.
func LogHandler(logger *zap.Logger) Handler {
	return HandlerFunc(func(s Snapshot) {
		fields := []zap.Field{
			zap.String("runner_id", s.RunnerID),
			zap.Int64("run_id", s.RunID),
			zap.String("status", string(s.Status)),
			zap.Int("progress", s.CurrentProgress),
			zap.Int("completed", s.Completed),
			zap.Int("error", s.Error),
			zap.Int("cancelled", s.Cancelled),
			zap.Int("total", s.Total),
		}
		if s.Terminal() {
			logger.Info("Run finished", fields...)
			return
		}
		logger.Debug("Run progress", fields...)
	})
}

// MultiHandler fans a snapshot out to every handler in order.
func MultiHandler(handlers ...Handler) Handler {
	return HandlerFunc(func(s Snapshot) {
		for _, h := range handlers {
			if h != nil {
				h.OnProgress(s)
			}
		}
	})
}
