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

// Package cluster adapts a controller-runtime client to the cluster
// collaborator: node cordon and drain plus ConfigMap backed records.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/internal/config"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/indexer"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/reconciler"
)

const (
	managedByLabel = "app.kubernetes.io/managed-by"
	managedByValue = "fabric-control-plane"

	drainPollInterval = 2 * time.Second
	drainExtraTimeout = time.Minute
)

type Cluster struct {
	client      client.Client
	namespace   string
	gracePeriod time.Duration
	log         logr.Logger
}

var _ ports.Cluster = (*Cluster)(nil)

type Option func(*Cluster)

func WithLogger(log logr.Logger) Option {
	return func(c *Cluster) { c.log = log }
}

// New returns a cluster adapter. The client must have pods indexed by
// indexer.PodNodeNameField.
func New(cl client.Client, cfg config.ClusterConfig, opts ...Option) *Cluster {
	c := &Cluster{
		client:      cl,
		namespace:   cfg.Namespace,
		gracePeriod: cfg.EvictionGracePeriod,
		log:         logr.Discard(),
	}
	if c.namespace == "" {
		c.namespace = config.DefaultNamespace
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cluster) ReadConfigRecord(ctx context.Context, name string) (map[string]string, error) {
	cm := &corev1.ConfigMap{}
	err := c.client.Get(ctx, client.ObjectKey{Namespace: c.namespace, Name: name}, cm)
	switch {
	case apierrors.IsNotFound(err):
		return map[string]string{}, nil
	case err != nil:
		return nil, failure.Comm("read config record "+name, err)
	}
	out := make(map[string]string, len(cm.Data))
	for k, v := range cm.Data {
		out[k] = v
	}
	return out, nil
}

func (c *Cluster) WriteConfigRecord(ctx context.Context, name string, data map[string]string) error {
	op := "write config record " + name
	want := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: c.namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
		},
		Data: make(map[string]string, len(data)),
	}
	for k, v := range data {
		want.Data[k] = v
	}

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current := &corev1.ConfigMap{}
		err := c.client.Get(ctx, client.ObjectKeyFromObject(want), current)
		if apierrors.IsNotFound(err) {
			return c.client.Create(ctx, want.DeepCopy())
		}
		if err != nil {
			return err
		}
		if current.Labels == nil {
			current.Labels = map[string]string{}
		}
		current.Labels[managedByLabel] = managedByValue
		current.Data = want.Data
		return c.client.Update(ctx, current)
	})
	return failure.Comm(op, err)
}

func (c *Cluster) Cordon(ctx context.Context, node string) error {
	return c.setUnschedulable(ctx, node, true)
}

func (c *Cluster) Uncordon(ctx context.Context, node string) error {
	return c.setUnschedulable(ctx, node, false)
}

func (c *Cluster) setUnschedulable(ctx context.Context, name string, value bool) error {
	op := fmt.Sprintf("set node %s unschedulable=%t", name, value)
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		node := &corev1.Node{}
		if err := c.client.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
			return err
		}
		_, err := reconciler.NewResource(node, c.client, reconciler.WithOptimisticLock()).
			Apply(ctx, func(n *corev1.Node) { n.Spec.Unschedulable = value })
		return err
	})
	if apierrors.IsNotFound(err) {
		return failure.Inconsistent(op, "node %q does not exist", name)
	}
	if err == nil {
		c.log.V(1).Info("node scheduling updated", "node", name, "unschedulable", value)
	}
	return failure.Comm(op, err)
}

// Evict requests eviction of every evictable pod on node and waits until
// those pods are gone.
func (c *Cluster) Evict(ctx context.Context, node string) error {
	op := "evict pods from node " + node
	pods, err := c.evictablePods(ctx, node)
	if err != nil {
		return failure.Comm(op, err)
	}

	grace := int64(c.gracePeriod / time.Second)
	for i := range pods {
		pod := &pods[i]
		if pod.DeletionTimestamp != nil {
			continue
		}
		eviction := &policyv1.Eviction{
			ObjectMeta: metav1.ObjectMeta{Name: pod.Name, Namespace: pod.Namespace},
			DeleteOptions: &metav1.DeleteOptions{
				GracePeriodSeconds: ptr.To(grace),
			},
		}
		err := c.client.SubResource("eviction").Create(ctx, pod, eviction)
		if apierrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return failure.Comm(op, fmt.Errorf("evict pod %s/%s: %w", pod.Namespace, pod.Name, err))
		}
		c.log.V(1).Info("pod eviction requested", "node", node, "pod", client.ObjectKeyFromObject(pod))
	}

	if len(pods) == 0 {
		return nil
	}
	timeout := c.gracePeriod + drainExtraTimeout
	err = wait.PollUntilContextTimeout(ctx, drainPollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		left, err := c.evictablePods(ctx, node)
		if err != nil {
			return false, err
		}
		return len(left) == 0, nil
	})
	if err != nil {
		return failure.Comm(op, fmt.Errorf("wait for pods to leave: %w", err))
	}
	c.log.Info("node drained", "node", node, "evicted", len(pods))
	return nil
}

func (c *Cluster) evictablePods(ctx context.Context, node string) ([]corev1.Pod, error) {
	list := &corev1.PodList{}
	if err := c.client.List(ctx, list, client.MatchingFields{indexer.PodNodeNameField: node}); err != nil {
		return nil, err
	}
	out := make([]corev1.Pod, 0, len(list.Items))
	for _, pod := range list.Items {
		if evictable(&pod) {
			out = append(out, pod)
		}
	}
	return out, nil
}

// evictable skips pods that a drain leaves in place. Terminating pods are
// still reported so the drain waits for them.
func evictable(pod *corev1.Pod) bool {
	if _, mirror := pod.Annotations[corev1.MirrorPodAnnotationKey]; mirror {
		return false
	}
	if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
		return false
	}
	if ref := metav1.GetControllerOf(pod); ref != nil && ref.Kind == "DaemonSet" {
		return false
	}
	return true
}
