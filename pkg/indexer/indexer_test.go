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
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

type capturingFieldIndexer struct {
	field     string
	extractor client.IndexerFunc
	calls     int
	err       error
}

func (f *capturingFieldIndexer) IndexField(_ context.Context, _ client.Object, field string, extractFunc client.IndexerFunc) error {
	f.calls++
	f.field = field
	f.extractor = extractFunc
	return f.err
}

func TestIndexPodByNodeName(t *testing.T) {
	idx := &capturingFieldIndexer{}

	if err := IndexPodByNodeName(context.Background(), idx); err != nil {
		t.Fatalf("unexpected index error: %v", err)
	}
	if idx.calls != 1 || idx.field != PodNodeNameField {
		t.Fatalf("expected index call for %s, got %d calls field %q", PodNodeNameField, idx.calls, idx.field)
	}

	pod := &corev1.Pod{}
	pod.Spec.NodeName = "node-a"
	values := idx.extractor(pod)
	if len(values) != 1 || values[0] != "node-a" {
		t.Fatalf("expected node name indexed, got %+v", values)
	}
	if values := idx.extractor(&corev1.Pod{}); values != nil {
		t.Fatalf("unscheduled pod must not be indexed, got %+v", values)
	}
	if values := idx.extractor(&corev1.Node{}); values != nil {
		t.Fatalf("unexpected values for foreign object: %+v", values)
	}
}

func TestIndexPodByNodeNameNilIndexer(t *testing.T) {
	if err := IndexPodByNodeName(context.Background(), nil); err != nil {
		t.Fatalf("nil indexer must be ignored, got %v", err)
	}
}

func TestIndexPodByNodeNamePropagatesError(t *testing.T) {
	idx := &capturingFieldIndexer{err: errors.New("boom")}
	if err := IndexPodByNodeName(context.Background(), idx); err == nil {
		t.Fatal("expected index error to be returned")
	}
}
