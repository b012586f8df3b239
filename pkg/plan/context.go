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

package plan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/inventory"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/monitoring/metrics"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports"
)

// ErrNodeLeftCordoned is recorded when a fabric edit could not be cancelled
// and the drained node therefore stays cordoned.
var ErrNodeLeftCordoned = errors.New("node left cordoned")

const inventoryKey = "inventory"

// ExecutionContext is the state shared by the steps of one plan execution.
// It owns the inventory arena that executors patch after every commit.
type ExecutionContext struct {
	Fabric  ports.Fabric
	Cluster ports.Cluster
	Log     logr.Logger

	loads singleflight.Group
	mu    sync.Mutex
	inv   *inventory.Inventory

	rollback []error
}

// NewExecutionContext returns a context around the given collaborators. A nil
// inventory is loaded from the fabric on first use.
func NewExecutionContext(fabric ports.Fabric, cluster ports.Cluster, inv *inventory.Inventory, log logr.Logger) *ExecutionContext {
	return &ExecutionContext{
		Fabric:  fabric,
		Cluster: cluster,
		Log:     log,
		inv:     inv,
	}
}

// Inventory returns the working inventory. Concurrent first calls share one
// fabric snapshot.
func (ec *ExecutionContext) Inventory(ctx context.Context) (*inventory.Inventory, error) {
	ec.mu.Lock()
	inv := ec.inv
	ec.mu.Unlock()
	if inv != nil {
		return inv, nil
	}

	v, err, _ := ec.loads.Do(inventoryKey, func() (any, error) {
		ec.mu.Lock()
		cached := ec.inv
		ec.mu.Unlock()
		if cached != nil {
			return cached, nil
		}
		loaded, err := inventory.Load(ctx, ec.Fabric)
		if err != nil {
			return nil, err
		}
		ec.mu.Lock()
		defer ec.mu.Unlock()
		if ec.inv == nil {
			ec.inv = loaded
		}
		return ec.inv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*inventory.Inventory), nil
}

func (ec *ExecutionContext) machine(ctx context.Context, name string) (*inventory.Machine, error) {
	inv, err := ec.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := inv.MachineByName(name)
	if !ok {
		return nil, failure.Inconsistent("resolve machine", "machine %q not found", name)
	}
	return m, nil
}

func (ec *ExecutionContext) group(ctx context.Context, name string) (*inventory.Group, error) {
	inv, err := ec.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := inv.GroupByName(name)
	if !ok {
		return nil, failure.Inconsistent("resolve group", "group %q not found", name)
	}
	return g, nil
}

func (ec *ExecutionContext) devices(ctx context.Context, names []string) ([]*inventory.DeviceItem, error) {
	inv, err := ec.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*inventory.DeviceItem, 0, len(names))
	for _, name := range names {
		d, ok := inv.DeviceByName(name)
		if !ok {
			return nil, failure.Inconsistent("resolve device", "device %q not found", name)
		}
		out = append(out, d)
	}
	return out, nil
}

func (ec *ExecutionContext) recordRollback(err error) {
	ec.rollback = append(ec.rollback, err)
}

func (ec *ExecutionContext) takeRollback() []error {
	out := ec.rollback
	ec.rollback = nil
	return out
}

type editOutcome int

const (
	editNotStarted editOutcome = iota
	editCommitted
	editCancelled
	editIndeterminate
)

type edit struct {
	target string
	id     string
	begin  func(context.Context, string) error
	commit func(context.Context, string) error
	cancel func(context.Context, string) error
	// cancelOp labels rollback metrics.
	cancelOp string
}

func (ec *ExecutionContext) machineEdit(m *inventory.Machine) edit {
	return edit{
		target:   "machine " + m.Name,
		id:       m.ID,
		begin:    ec.Fabric.BeginMachineEdit,
		commit:   ec.Fabric.CommitMachineEdit,
		cancel:   ec.Fabric.CancelMachineEdit,
		cancelOp: "CancelMachineEdit",
	}
}

// groupEdit edits one group. A nil group edits the pool of groups.
func (ec *ExecutionContext) groupEdit(g *inventory.Group) edit {
	e := edit{
		target:   "group pool",
		begin:    ec.Fabric.BeginGroupEdit,
		commit:   ec.Fabric.CommitGroupEdit,
		cancel:   ec.Fabric.CancelGroupEdit,
		cancelOp: "CancelGroupEdit",
	}
	if g != nil {
		e.target = "group " + g.Name
		e.id = g.ID
	}
	return e
}

// runEdit executes body inside a fabric edit. Once begin succeeds the edit is
// either committed or cancelled exactly once, and cancelling ctx no longer
// interrupts it. A failed cancel leaves the outcome indeterminate.
func (ec *ExecutionContext) runEdit(ctx context.Context, e edit, body func(context.Context) error) (editOutcome, error) {
	if err := e.begin(ctx, e.id); err != nil {
		return editNotStarted, failure.Comm("begin "+e.target+" edit", err)
	}
	ctx = context.WithoutCancel(ctx)

	err := body(ctx)
	if err == nil {
		if err = e.commit(ctx, e.id); err == nil {
			return editCommitted, nil
		}
		err = failure.Comm("commit "+e.target+" edit", err)
	}

	cerr := e.cancel(ctx, e.id)
	metrics.RollbackInc(e.cancelOp, cerr)
	if cerr != nil {
		ec.recordRollback(fmt.Errorf("cancel %s edit: %w", e.target, cerr))
		ec.Log.Error(cerr, "fabric edit is left outstanding", "target", e.target)
		return editIndeterminate, err
	}
	ec.Log.V(1).Info("fabric edit cancelled", "target", e.target)
	return editCancelled, err
}

// drain runs an edit with node cordoned and evicted. The node is uncordoned
// after the edit is committed or confirmed cancelled, and stays cordoned when
// the outcome is indeterminate. An empty node skips the drain. Uncordon runs
// even when ctx is already cancelled.
func (ec *ExecutionContext) drain(ctx context.Context, node string, run func(context.Context) (editOutcome, error)) error {
	if node == "" {
		ec.Log.Info("machine is not linked to a cluster node, skipping drain")
		_, err := run(ctx)
		return err
	}

	if err := ec.Cluster.Cordon(ctx, node); err != nil {
		return failure.Comm("cordon node "+node, err)
	}
	if err := ec.Cluster.Evict(ctx, node); err != nil {
		ec.rollbackUncordon(ctx, node)
		return failure.Comm("evict node "+node, err)
	}

	outcome, err := run(ctx)
	switch outcome {
	case editIndeterminate:
		ec.recordRollback(fmt.Errorf("%w: %s", ErrNodeLeftCordoned, node))
		return err
	case editCommitted:
		uerr := ec.Cluster.Uncordon(context.WithoutCancel(ctx), node)
		if err != nil {
			if uerr != nil {
				ec.recordRollback(fmt.Errorf("uncordon node %s: %w", node, uerr))
			}
			return err
		}
		return failure.Comm("uncordon node "+node, uerr)
	default:
		ec.rollbackUncordon(ctx, node)
		return err
	}
}

func (ec *ExecutionContext) rollbackUncordon(ctx context.Context, node string) {
	err := ec.Cluster.Uncordon(context.WithoutCancel(ctx), node)
	metrics.RollbackInc("Uncordon", err)
	if err != nil {
		ec.recordRollback(fmt.Errorf("uncordon node %s: %w", node, err))
		ec.Log.Error(err, "node is left cordoned", "node", node)
	}
}
