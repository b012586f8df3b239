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

package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrappedError(t *testing.T) {
	base := Invalid("load desired", "machine %q listed twice", "m1")
	wrapped := fmt.Errorf("build plan: %w", base)

	if got := KindOf(wrapped); got != InvalidConfiguration {
		t.Fatalf("expected InvalidConfiguration, got %s", got)
	}
	if !Is(wrapped, InvalidConfiguration) {
		t.Fatalf("expected Is to match wrapped kind")
	}
	if Is(nil, InvalidConfiguration) {
		t.Fatalf("nil error must not match any kind")
	}
	if KindOf(errors.New("plain")) != Unknown {
		t.Fatalf("plain errors should be Unknown")
	}
}

func TestCommKeepsExistingKind(t *testing.T) {
	inner := Internal("synthesize", "deadlock")
	if got := Comm("list devices", inner); got != inner {
		t.Fatalf("expected classified error to pass through, got %v", got)
	}
	if Comm("list devices", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}

	cause := errors.New("connection refused")
	err := Comm("list devices", cause)
	if !Is(err, Communication) {
		t.Fatalf("expected Communication kind, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved")
	}
	if err.Error() != "CommunicationFailure: list devices: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestErrorMessageVariants(t *testing.T) {
	cases := map[string]*Error{
		"DataInconsistency":                 New(DataInconsistency, "", nil),
		"DataInconsistency: boom":           New(DataInconsistency, "", errors.New("boom")),
		"DataInconsistency: reload":         New(DataInconsistency, "reload", nil),
		"DataInconsistency: reload: boom":   New(DataInconsistency, "reload", errors.New("boom")),
		"Unknown: op: x":                    New(Unknown, "op", errors.New("x")),
		"InternalInvariantViolation: op: 3": Newf(InternalInvariantViolation, "op", "%d", 3),
	}
	for want, err := range cases {
		if err.Error() != want {
			t.Fatalf("want %q, got %q", want, err.Error())
		}
	}
}
