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

// Package fake provides in-memory fabric and cluster collaborators that record
// every call and can be told to fail.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
)

// ErrInjected is returned by failures configured without an explicit error.
var ErrInjected = errors.New("injected failure")

type device struct {
	status ports.DeviceStatus
	info   ports.DeviceInfo
}

// Fabric is a transactional in-memory fabric controller.
type Fabric struct {
	mu sync.Mutex

	devices   map[string]device
	groups    map[string]ports.GroupRecord
	machines  map[string]ports.MachineRecord
	relations map[string]ports.Relation

	edit   string
	staged []func()
	nextID int

	calls    []string
	failures map[string][]error
}

var _ ports.Fabric = (*Fabric)(nil)

// NewFabric returns an empty fabric.
func NewFabric() *Fabric {
	return &Fabric{
		devices:   map[string]device{},
		groups:    map[string]ports.GroupRecord{},
		machines:  map[string]ports.MachineRecord{},
		relations: map[string]ports.Relation{},
		failures:  map[string][]error{},
	}
}

// AddGroup seeds a group.
func (f *Fabric) AddGroup(id, name string) *Fabric {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[id] = ports.GroupRecord{ID: id, Name: name}
	return f
}

// AddMachine seeds a machine.
func (f *Fabric) AddMachine(id, name, groupID, node string) *Fabric {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.machines[id] = ports.MachineRecord{ID: id, Name: name, GroupID: groupID, NodeName: node}
	return f
}

// AddDevice seeds a device. Empty groupID and machineID leave it unattached.
func (f *Fabric) AddDevice(id, name string, t resource.GeneralType, vendor, model, groupID, machineID string) *Fabric {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[id] = device{
		status: ports.DeviceStatus{ID: id, Name: name, State: "OK"},
		info:   ports.DeviceInfo{ID: id, Type: t, Vendor: vendor, Model: model},
	}
	if groupID != "" || machineID != "" {
		f.relations[id] = ports.Relation{DeviceID: id, GroupID: groupID, MachineID: machineID}
	}
	return f
}

// FailOn makes the next calls of method return the given errors, one per call.
// A nil error in the list is replaced by ErrInjected.
func (f *Fabric) FailOn(method string, errs ...error) *Fabric {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(errs) == 0 {
		errs = []error{ErrInjected}
	}
	for i := range errs {
		if errs[i] == nil {
			errs[i] = ErrInjected
		}
	}
	f.failures[method] = append(f.failures[method], errs...)
	return f
}

// Calls returns the recorded calls as "Method arg1 arg2".
func (f *Fabric) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts recorded calls of one method.
func (f *Fabric) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method || strings.HasPrefix(c, method+" ") {
			n++
		}
	}
	return n
}

// OpenEdit returns the outstanding edit, or "" when none is open.
func (f *Fabric) OpenEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edit
}

// RelationOf returns the committed relation of a device.
func (f *Fabric) RelationOf(deviceID string) ports.Relation {
	f.mu.Lock()
	defer f.mu.Unlock()
	rel := f.relations[deviceID]
	rel.DeviceID = deviceID
	return rel
}

// MachineByName returns the committed machine with the given name.
func (f *Fabric) MachineByName(name string) (ports.MachineRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.machines {
		if m.Name == name {
			return m, true
		}
	}
	return ports.MachineRecord{}, false
}

// GroupByName returns the committed group with the given name.
func (f *Fabric) GroupByName(name string) (ports.GroupRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.Name == name {
			return g, true
		}
	}
	return ports.GroupRecord{}, false
}

func (f *Fabric) record(method string, args ...string) error {
	f.calls = append(f.calls, strings.TrimSpace(method+" "+strings.Join(args, " ")))
	if queue := f.failures[method]; len(queue) > 0 {
		f.failures[method] = queue[1:]
		return queue[0]
	}
	return nil
}

func (f *Fabric) DeviceStatuses(context.Context) ([]ports.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeviceStatuses"); err != nil {
		return nil, err
	}
	out := make([]ports.DeviceStatus, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fabric) DeviceInfo(_ context.Context, t resource.GeneralType) ([]ports.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeviceInfo", string(t)); err != nil {
		return nil, err
	}
	var out []ports.DeviceInfo
	for _, d := range f.devices {
		if d.info.Type == t {
			out = append(out, d.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fabric) Groups(context.Context) ([]ports.GroupRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Groups"); err != nil {
		return nil, err
	}
	out := make([]ports.GroupRecord, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fabric) Machines(context.Context) ([]ports.MachineRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Machines"); err != nil {
		return nil, err
	}
	out := make([]ports.MachineRecord, 0, len(f.machines))
	for _, m := range f.machines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fabric) Relations(context.Context) ([]ports.Relation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Relations"); err != nil {
		return nil, err
	}
	out := make([]ports.Relation, 0, len(f.relations))
	for _, r := range f.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (f *Fabric) begin(method, key string) error {
	if err := f.record(method, key); err != nil {
		return err
	}
	if f.edit != "" {
		return fmt.Errorf("edit %q already in progress", f.edit)
	}
	f.edit = key
	f.staged = nil
	return nil
}

func (f *Fabric) commit(method, key string) error {
	if err := f.record(method, key); err != nil {
		return err
	}
	if f.edit != key {
		return fmt.Errorf("no edit %q in progress", key)
	}
	for _, apply := range f.staged {
		apply()
	}
	f.edit = ""
	f.staged = nil
	return nil
}

func (f *Fabric) cancel(method, key string) error {
	if err := f.record(method, key); err != nil {
		return err
	}
	if f.edit != key {
		return fmt.Errorf("no edit %q in progress", key)
	}
	f.edit = ""
	f.staged = nil
	return nil
}

func (f *Fabric) stage(method string, apply func(), args ...string) error {
	if err := f.record(method, args...); err != nil {
		return err
	}
	if f.edit == "" {
		return fmt.Errorf("%s outside of an edit", method)
	}
	f.staged = append(f.staged, apply)
	return nil
}

func groupKey(id string) string   { return "group:" + id }
func machineKey(id string) string { return "machine:" + id }

func (f *Fabric) BeginGroupEdit(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begin("BeginGroupEdit", groupKey(groupID))
}

func (f *Fabric) CommitGroupEdit(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commit("CommitGroupEdit", groupKey(groupID))
}

func (f *Fabric) CancelGroupEdit(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel("CancelGroupEdit", groupKey(groupID))
}

func (f *Fabric) BeginMachineEdit(_ context.Context, machineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begin("BeginMachineEdit", machineKey(machineID))
}

func (f *Fabric) CommitMachineEdit(_ context.Context, machineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commit("CommitMachineEdit", machineKey(machineID))
}

func (f *Fabric) CancelMachineEdit(_ context.Context, machineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel("CancelMachineEdit", machineKey(machineID))
}

func (f *Fabric) CreateGroup(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("g-new-%d", f.nextID)
	err := f.stage("CreateGroup", func() {
		f.groups[id] = ports.GroupRecord{ID: id, Name: name}
	}, name)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (f *Fabric) DeleteGroup(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage("DeleteGroup", func() {
		delete(f.groups, groupID)
	}, groupID)
}

func (f *Fabric) CreateMachine(_ context.Context, groupID, name, computeDeviceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("m-new-%d", f.nextID)
	err := f.stage("CreateMachine", func() {
		f.machines[id] = ports.MachineRecord{ID: id, Name: name, GroupID: groupID}
		f.relations[computeDeviceID] = ports.Relation{DeviceID: computeDeviceID, GroupID: groupID, MachineID: id}
	}, groupID, name, computeDeviceID)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (f *Fabric) DeleteMachine(_ context.Context, machineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage("DeleteMachine", func() {
		m := f.machines[machineID]
		delete(f.machines, machineID)
		for id, rel := range f.relations {
			if rel.MachineID == machineID {
				f.relations[id] = ports.Relation{DeviceID: id, GroupID: m.GroupID}
			}
		}
	}, machineID)
}

func (f *Fabric) AddDeviceToGroup(_ context.Context, groupID, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage("AddDeviceToGroup", func() {
		f.relations[deviceID] = ports.Relation{DeviceID: deviceID, GroupID: groupID}
	}, groupID, deviceID)
}

func (f *Fabric) RemoveDeviceFromGroup(_ context.Context, groupID, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage("RemoveDeviceFromGroup", func() {
		delete(f.relations, deviceID)
	}, groupID, deviceID)
}

func (f *Fabric) AddDeviceToMachine(_ context.Context, machineID, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage("AddDeviceToMachine", func() {
		f.relations[deviceID] = ports.Relation{DeviceID: deviceID, GroupID: f.machines[machineID].GroupID, MachineID: machineID}
	}, machineID, deviceID)
}

func (f *Fabric) RemoveDeviceFromMachine(_ context.Context, machineID, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage("RemoveDeviceFromMachine", func() {
		rel := f.relations[deviceID]
		if rel.MachineID == machineID {
			rel.MachineID = ""
			f.relations[deviceID] = rel
		}
	}, machineID, deviceID)
}
