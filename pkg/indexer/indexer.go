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

package indexer

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// PodNodeNameField indexes Pods by spec.nodeName for node drains.
	PodNodeNameField = "spec.nodeName"
)

func IndexPodByNodeName(ctx context.Context, idx client.FieldIndexer) error {
	if idx == nil {
		return nil
	}
	return idx.IndexField(ctx, &corev1.Pod{}, PodNodeNameField, PodNodeName)
}

// PodNodeName is the extractor behind PodNodeNameField.
func PodNodeName(obj client.Object) []string {
	pod, ok := obj.(*corev1.Pod)
	if !ok || pod.Spec.NodeName == "" {
		return nil
	}
	return []string{pod.Spec.NodeName}
}
