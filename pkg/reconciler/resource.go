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

// Package reconciler holds helpers for patching cluster objects.
package reconciler

import (
	"context"
	"errors"
	"reflect"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

var (
	errNilClient   = errors.New("resource client is not configured")
	errNilResource = errors.New("resource is not initialized")
)

// Resource keeps a snapshot of an object so that local changes can be sent
// as a merge patch.
type Resource[T client.Object] struct {
	original T
	current  T
	client   client.Client
	lock     bool
}

type Option func(*options)

type options struct {
	lock bool
}

// WithOptimisticLock makes patches carry the snapshot resourceVersion, so a
// concurrent writer turns the patch into a conflict.
func WithOptimisticLock() Option {
	return func(o *options) { o.lock = true }
}

func isNilObject[T any](obj T) bool {
	val := reflect.ValueOf(obj)
	if !val.IsValid() {
		return true
	}
	switch val.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Slice:
		return val.IsNil()
	default:
		return false
	}
}

// NewResource snapshots obj. Later changes to obj are what Patch sends.
func NewResource[T client.Object](obj T, cl client.Client, opts ...Option) *Resource[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Resource[T]{current: obj, client: cl, lock: o.lock}
	if !isNilObject(obj) {
		if snapshot, ok := obj.DeepCopyObject().(T); ok {
			r.original = snapshot
		}
	}
	return r
}

func (r *Resource[T]) Original() T {
	return r.original
}

func (r *Resource[T]) Current() T {
	return r.current
}

// Changed reports whether the current object differs from the snapshot.
func (r *Resource[T]) Changed() bool {
	if isNilObject(r.current) || isNilObject(r.original) {
		return false
	}
	return !reflect.DeepEqual(r.original, r.current)
}

// Apply runs mutate on the current object and patches it when something
// changed. It reports whether a patch was sent.
func (r *Resource[T]) Apply(ctx context.Context, mutate func(T)) (bool, error) {
	if isNilObject(r.current) {
		return false, errNilResource
	}
	mutate(r.current)
	if !r.Changed() {
		return false, nil
	}
	return true, r.Patch(ctx)
}

// Patch sends the difference between the snapshot and the current object.
func (r *Resource[T]) Patch(ctx context.Context) error {
	if r.client == nil {
		return errNilClient
	}
	if isNilObject(r.current) || isNilObject(r.original) {
		return errNilResource
	}
	patch := client.MergeFrom(r.original)
	if r.lock {
		patch = client.MergeFromWithOptions(r.original, client.MergeFromWithOptimisticLock{})
	}
	return r.client.Patch(ctx, r.current, patch)
}
