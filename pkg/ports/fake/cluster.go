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

package fake

import (
	"context"
	"strings"
	"sync"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports"
)

// Cluster is an in-memory cluster collaborator.
type Cluster struct {
	mu       sync.Mutex
	cordoned map[string]bool
	records  map[string]map[string]string
	calls    []string
	failures map[string][]error
	// Observer, when set, is called after every recorded call.
	Observer func(call string)
}

var _ ports.Cluster = (*Cluster)(nil)

// NewCluster returns an empty cluster.
func NewCluster() *Cluster {
	return &Cluster{
		cordoned: map[string]bool{},
		records:  map[string]map[string]string{},
		failures: map[string][]error{},
	}
}

// FailOn makes the next calls of method return the given errors.
func (c *Cluster) FailOn(method string, errs ...error) *Cluster {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(errs) == 0 {
		errs = []error{ErrInjected}
	}
	for i := range errs {
		if errs[i] == nil {
			errs[i] = ErrInjected
		}
	}
	c.failures[method] = append(c.failures[method], errs...)
	return c
}

// Cordoned reports whether a node is currently cordoned.
func (c *Cluster) Cordoned(node string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cordoned[node]
}

// Calls returns the recorded calls.
func (c *Cluster) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// CallCount counts recorded calls of one method.
func (c *Cluster) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == method || strings.HasPrefix(call, method+" ") {
			n++
		}
	}
	return n
}

func (c *Cluster) record(method, arg string) error {
	call := strings.TrimSpace(method + " " + arg)
	c.calls = append(c.calls, call)
	if c.Observer != nil {
		c.Observer(call)
	}
	if queue := c.failures[method]; len(queue) > 0 {
		c.failures[method] = queue[1:]
		return queue[0]
	}
	return nil
}

func (c *Cluster) ReadConfigRecord(_ context.Context, name string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("ReadConfigRecord", name); err != nil {
		return nil, err
	}
	out := map[string]string{}
	for k, v := range c.records[name] {
		out[k] = v
	}
	return out, nil
}

func (c *Cluster) WriteConfigRecord(_ context.Context, name string, data map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("WriteConfigRecord", name); err != nil {
		return err
	}
	cp := make(map[string]string, len(data))
	for k, v := range data {
		cp[k] = v
	}
	c.records[name] = cp
	return nil
}

func (c *Cluster) Cordon(_ context.Context, node string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Cordon", node); err != nil {
		return err
	}
	c.cordoned[node] = true
	return nil
}

func (c *Cluster) Uncordon(_ context.Context, node string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Uncordon", node); err != nil {
		return err
	}
	c.cordoned[node] = false
	return nil
}

func (c *Cluster) Evict(_ context.Context, node string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record("Evict", node)
}
