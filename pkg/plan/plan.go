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

// Package plan holds the ordered, executable result of planning and the
// executor that applies it to the fabric and the cluster.
//
// Steps run strictly one after another. A step that opened a fabric edit
// always commits or cancels it; nodes drained for a step are uncordoned only
// once the edit is committed or confirmed cancelled. Committed steps are never
// undone, so a failed execution leaves every step before the failing one in
// place.
package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/inventory"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/monitoring/metrics"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports"
)

// Plan is an ordered list of actions.
type Plan struct {
	actions []Action
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{}
}

// AddAction appends a and returns the plan for chaining.
func (p *Plan) AddAction(a Action) *Plan {
	p.actions = append(p.actions, a)
	return p
}

// Actions returns a copy of the planned actions in execution order.
func (p *Plan) Actions() []Action {
	return append([]Action(nil), p.actions...)
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	return len(p.actions)
}

// Describe returns one human readable line per step.
func (p *Plan) Describe() []string {
	out := make([]string, 0, len(p.actions))
	for _, a := range p.actions {
		out = append(out, a.Describe())
	}
	return out
}

// Validate simulates every step on a copy of inv. It fails on the first step
// that does not apply to the state left by the steps before it.
func (p *Plan) Validate(inv *inventory.Inventory) error {
	sim := inv.Copy()
	for i, a := range p.actions {
		if err := validateStep(sim, a); err != nil {
			return fmt.Errorf("step %d/%d: %w", i+1, len(p.actions), err)
		}
	}
	return nil
}

func validateStep(inv *inventory.Inventory, a Action) error {
	ex, err := executorFor(a)
	if err != nil {
		return err
	}
	if a.Kind() == KindNoOperation {
		return failure.Internal("validate plan", "no-operation step in a finished plan")
	}
	return ex.Simulate(inv, a)
}

// StepError reports the step that stopped an execution together with any
// rollback operation that failed while undoing that step.
type StepError struct {
	Step        int
	Total       int
	Description string
	Err         error
	Rollback    []error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d/%d (%s): %v", e.Step, e.Total, e.Description, e.Err)
	if len(e.Rollback) > 0 {
		b.WriteString("; rollback failed: ")
		b.WriteString(errors.Join(e.Rollback...).Error())
	}
	return strings.ReplaceAll(b.String(), "\n", "; ")
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Reporter is told about every step before it runs.
type Reporter func(step, total int, description string)

type options struct {
	log      logr.Logger
	inv      *inventory.Inventory
	reporter Reporter
}

// Option configures an execution.
type Option func(*options)

// WithLogger sets the logger steps report to.
func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithInventory makes the execution patch inv instead of loading a fresh
// snapshot from the fabric.
func WithInventory(inv *inventory.Inventory) Option {
	return func(o *options) { o.inv = inv }
}

// WithReporter registers r to be told about every step.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// Execute validates the plan and runs it step by step. It stops at the first
// failing step and returns a *StepError for it.
func (p *Plan) Execute(ctx context.Context, fabric ports.Fabric, cluster ports.Cluster, opts ...Option) error {
	o := options{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	ec := NewExecutionContext(fabric, cluster, o.inv, o.log)
	inv, err := ec.Inventory(ctx)
	if err != nil {
		return err
	}
	if err := p.Validate(inv); err != nil {
		return err
	}

	total := len(p.actions)
	for i, a := range p.actions {
		step := i + 1
		desc := a.Describe()
		log := o.log.WithValues("step", step, "total", total, "kind", string(a.Kind()))
		log.Info("executing step", "description", desc)
		if o.reporter != nil {
			o.reporter(step, total, desc)
		}

		ex, _ := executorFor(a)
		ec.Log = log
		started := time.Now()
		err := ex.Execute(ctx, ec, a)
		metrics.ActionObserve(string(a.Kind()), started, err)
		rollback := ec.takeRollback()
		if err != nil {
			log.Error(err, "step failed", "rollbackFailures", len(rollback))
			return &StepError{Step: step, Total: total, Description: desc, Err: err, Rollback: rollback}
		}
	}
	return nil
}
