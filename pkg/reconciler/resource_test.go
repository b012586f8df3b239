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

package reconciler

import (
	"context"
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("add scheme: %v", err)
	}
	return scheme
}

func TestResourcePatch(t *testing.T) {
	node := &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node-a", ResourceVersion: "1"}}
	cl := fake.NewClientBuilder().WithScheme(newScheme(t)).WithObjects(node.DeepCopy()).Build()

	resource := NewResource(node, cl)
	if resource.Changed() {
		t.Fatal("fresh resource must not report changes")
	}
	node.Spec.Unschedulable = true
	if !resource.Changed() {
		t.Fatal("expected change to be detected")
	}

	if err := resource.Patch(context.Background()); err != nil {
		t.Fatalf("patch failed: %v", err)
	}

	stored := &corev1.Node{}
	if err := cl.Get(context.Background(), client.ObjectKey{Name: "node-a"}, stored); err != nil {
		t.Fatalf("get patched node: %v", err)
	}
	if !stored.Spec.Unschedulable {
		t.Fatal("expected node to be unschedulable")
	}
	// original copy must stay untouched
	if resource.Original().Spec.Unschedulable {
		t.Fatal("expected original snapshot preserved")
	}
	if resource.Current() != node {
		t.Fatal("current must be the tracked object")
	}
}

func TestResourcePatchErrors(t *testing.T) {
	node := &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node-a"}}

	t.Run("nil client", func(t *testing.T) {
		resource := NewResource(node, nil)
		if err := resource.Patch(context.Background()); !errors.Is(err, errNilClient) {
			t.Fatalf("expected errNilClient, got %v", err)
		}
	})

	t.Run("nil resource", func(t *testing.T) {
		cl := fake.NewClientBuilder().WithScheme(newScheme(t)).Build()
		var empty *corev1.Node
		resource := NewResource(empty, cl)
		if err := resource.Patch(context.Background()); !errors.Is(err, errNilResource) {
			t.Fatalf("expected errNilResource, got %v", err)
		}
		if resource.Changed() {
			t.Fatal("nil resource must not report changes")
		}
	})
}

func TestResourceApply(t *testing.T) {
	cl := fake.NewClientBuilder().WithScheme(newScheme(t)).
		WithObjects(&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node-a"}}).
		Build()
	ctx := context.Background()

	node := &corev1.Node{}
	if err := cl.Get(ctx, client.ObjectKey{Name: "node-a"}, node); err != nil {
		t.Fatalf("get node: %v", err)
	}
	cordon := func(n *corev1.Node) { n.Spec.Unschedulable = true }

	patched, err := NewResource(node, cl, WithOptimisticLock()).Apply(ctx, cordon)
	if err != nil || !patched {
		t.Fatalf("expected a patch, got patched=%t err=%v", patched, err)
	}

	if err := cl.Get(ctx, client.ObjectKey{Name: "node-a"}, node); err != nil {
		t.Fatalf("get node: %v", err)
	}
	patched, err = NewResource(node, cl, WithOptimisticLock()).Apply(ctx, cordon)
	if err != nil || patched {
		t.Fatalf("expected no-op, got patched=%t err=%v", patched, err)
	}

	var empty *corev1.Node
	if _, err := NewResource(empty, cl).Apply(ctx, cordon); !errors.Is(err, errNilResource) {
		t.Fatalf("expected errNilResource, got %v", err)
	}
}

func TestResourceOptimisticLockConflict(t *testing.T) {
	cl := fake.NewClientBuilder().WithScheme(newScheme(t)).
		WithObjects(&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node-a"}}).
		Build()
	ctx := context.Background()

	stale := &corev1.Node{}
	if err := cl.Get(ctx, client.ObjectKey{Name: "node-a"}, stale); err != nil {
		t.Fatalf("get node: %v", err)
	}

	fresh := stale.DeepCopy()
	fresh.Labels = map[string]string{"drain": "pending"}
	if err := cl.Update(ctx, fresh); err != nil {
		t.Fatalf("update node: %v", err)
	}

	unlocked := stale.DeepCopy()
	cordon := func(n *corev1.Node) { n.Spec.Unschedulable = true }

	_, err := NewResource(stale, cl, WithOptimisticLock()).Apply(ctx, cordon)
	if !apierrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := NewResource(unlocked, cl).Apply(ctx, cordon); err != nil {
		t.Fatalf("patch without lock failed: %v", err)
	}
	stored := &corev1.Node{}
	if err := cl.Get(ctx, client.ObjectKey{Name: "node-a"}, stored); err != nil {
		t.Fatalf("get node: %v", err)
	}
	if !stored.Spec.Unschedulable || stored.Labels["drain"] != "pending" {
		t.Fatalf("expected merged node, got %+v", stored)
	}
}
