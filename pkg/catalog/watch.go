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
package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Update reports a catalog file change picked up by Watch.
type Update struct {
	Path      string
	Action    string // created, modified, deleted, error
	Error     error
	Timestamp time.Time
}

// Watch reloads the catalog whenever a catalog file changes and reports
// each reload on the returned channel. The channel closes when ctx is done.
// Directories that do not exist yet are not watched.
func (c *Catalog) Watch(ctx context.Context) (<-chan Update, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	watched := 0
	for _, dir := range c.opts.Paths.All() {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		watched++
	}
	c.logger.Debug("Watching catalog directories", zap.Int("count", watched))

	ch := make(chan Update, 10)

	go func() {
		defer func() { _ = watcher.Close() }()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isCatalogFile(event.Name) {
					continue
				}

				var action string
				switch {
				case event.Op&fsnotify.Write == fsnotify.Write:
					action = "modified"
				case event.Op&fsnotify.Create == fsnotify.Create:
					action = "created"
				case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					action = "deleted"
				default:
					continue
				}

				update := Update{Path: event.Name, Action: action, Timestamp: time.Now()}
				if err := c.Reload(); err != nil {
					update.Action = "error"
					update.Error = fmt.Errorf("failed to reload catalog: %w", err)
				}
				select {
				case ch <- update:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case ch <- Update{Action: "error", Error: err, Timestamp: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
