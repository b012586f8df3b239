// Copyright 2025 Flant JSC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package contracts

import (
	"sort"
	"sync"
)

// Named is implemented by everything kept in a Registry.
type Named interface {
	Name() string
}

// Registry stores handlers keyed by their name. Registering a handler with
// an existing name replaces the previous one.
type Registry[T Named] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewRegistry[T Named]() *Registry[T] {
	return &Registry[T]{
		items: make(map[string]T),
	}
}

func (r *Registry[T]) Register(handler T) {
	r.mu.Lock()
	r.items[handler.Name()] = handler
	r.mu.Unlock()
}

// Get returns the handler registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[name]
	return v, ok
}

// List returns registered handlers ordered by name.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	result := make([]T, 0, len(names))
	for _, name := range names {
		result = append(result, r.items[name])
	}
	r.mu.RUnlock()
	return result
}
