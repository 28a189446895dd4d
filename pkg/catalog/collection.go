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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/crucible/pkg/types"
)

type validatable interface {
	Entity
	Validate() error
}

// collection is one flat catalog directory of {id}.json / {id}.yaml files.
// Items are never mutated in place: writers replace the pointer, so a
// reader holding an item keeps a consistent view.
type collection[P validatable] struct {
	kind    Kind
	dir     string
	newItem func() P

	mu    sync.RWMutex
	items map[string]P
	files map[string]string
}

func newCollection[P validatable](kind Kind, dir string, newItem func() P) *collection[P] {
	return &collection[P]{
		kind:    kind,
		dir:     dir,
		newItem: newItem,
		items:   make(map[string]P),
		files:   make(map[string]string),
	}
}

// fileError is a problem confined to one catalog file.
type fileError struct {
	Path string
	Err  error
}

func (e *fileError) Error() string { return "failed to load " + e.Path + ": " + e.Err.Error() }

func (e *fileError) Unwrap() error { return e.Err }

func isCatalogFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// reload reads every file in the directory and swaps the item map. Files
// that fail to parse or validate are skipped and reported.
func (c *collection[P]) reload() []error {
	items := make(map[string]P)
	files := make(map[string]string)
	var problems []error

	entries, err := os.ReadDir(c.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		problems = append(problems, fmt.Errorf("failed to read %s directory %s: %w", c.kind, c.dir, err))
	}
	for _, entry := range entries {
		if entry.IsDir() || !isCatalogFile(entry.Name()) {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		item, err := c.readFile(path)
		if err != nil {
			problems = append(problems, &fileError{Path: path, Err: err})
			continue
		}
		id := item.EntityID()
		if prev, dup := files[id]; dup {
			problems = append(problems, &fileError{Path: path, Err: types.Validation("duplicate %s id %q, already defined in %s", c.kind, id, prev)})
			continue
		}
		items[id] = item
		files[id] = path
	}

	c.mu.Lock()
	c.items = items
	c.files = files
	c.mu.Unlock()
	return problems
}

func (c *collection[P]) readFile(path string) (P, error) {
	var zero P
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, err
	}

	var doc any
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return zero, types.Validation("malformed JSON: %v", err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return zero, types.Validation("malformed YAML: %v", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return zero, types.Validation("YAML document is not JSON-compatible: %v", err)
		}
	}
	if err := validateDocument(c.kind, doc); err != nil {
		return zero, err
	}

	item := c.newItem()
	if err := json.Unmarshal(data, item); err != nil {
		return zero, types.Validation("failed to decode %s: %v", c.kind, err)
	}
	if item.EntityID() == "" {
		item.setEntityID(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	if err := item.Validate(); err != nil {
		return zero, err
	}
	return item, nil
}

func (c *collection[P]) get(id string) (P, error) {
	c.mu.RLock()
	item, ok := c.items[id]
	c.mu.RUnlock()
	if !ok {
		var zero P
		return zero, types.NotFound(string(c.kind), id, suggest(id, c.ids())...)
	}
	return item, nil
}

func (c *collection[P]) has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[id]
	return ok
}

func (c *collection[P]) ids() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (c *collection[P]) list() []P {
	c.mu.RLock()
	out := make([]P, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID() < out[j].EntityID() })
	return out
}

// create slugs the name into the id, rejects collisions and writes
// {id}.json.
func (c *collection[P]) create(item P) (P, error) {
	var zero P
	id := types.Slugify(item.EntityName())
	if id == "" {
		return zero, types.Validation("%s name %q does not produce a valid id", c.kind, item.EntityName())
	}
	item.setEntityID(id)
	if err := item.Validate(); err != nil {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[id]; exists {
		return zero, types.Validation("%s %q already exists", c.kind, id)
	}
	path := filepath.Join(c.dir, id+".json")
	if err := writeEntity(path, item); err != nil {
		return zero, err
	}
	c.items[id] = item
	c.files[id] = path
	return item, nil
}

// update replaces an existing item, keeping its file and format.
func (c *collection[P]) update(item P) error {
	if err := item.Validate(); err != nil {
		return err
	}
	id := item.EntityID()

	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.files[id]
	if !ok {
		return types.NotFound(string(c.kind), id)
	}
	if err := writeEntity(path, item); err != nil {
		return err
	}
	c.items[id] = item
	return nil
}

func (c *collection[P]) delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.files[id]
	if !ok {
		return types.NotFound(string(c.kind), id)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s %q: %w", c.kind, id, err)
	}
	delete(c.items, id)
	delete(c.files, id)
	return nil
}

func writeEntity(path string, item any) error {
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(item, "", "  ")
	default:
		data, err = yaml.Marshal(item)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}

// suggest returns up to three ids that fuzzily match id.
func suggest(id string, ids []string) []string {
	if id == "" || len(ids) == 0 {
		return nil
	}
	matches := fuzzy.Find(id, ids)
	out := make([]string, 0, 3)
	for _, m := range matches {
		if len(out) == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
