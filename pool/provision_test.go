package pool

import (
	"context"
	"math/bits"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-clientkit/core"
)

type stubPool struct {
	name     string
	capacity int
}

func (s *stubPool) Name() string  { return s.name }
func (s *stubPool) Capacity() int { return s.capacity }
func (s *stubPool) Submit(context.Context, core.Task) error {
	return nil
}
func (s *stubPool) Every(context.Context, time.Duration, core.Task) error {
	return nil
}

func subset(mask uint) []core.ModuleKind {
	all := core.AllModules()
	out := []core.ModuleKind{}
	for i, kind := range all {
		if mask&(1<<uint(i)) != 0 {
			out = append(out, kind)
		}
	}
	return out
}

func TestRequiredThreads_AllModuleCombinations(t *testing.T) {
	all := core.AllModules()
	for mask := uint(0); mask < 1<<uint(len(all)); mask++ {
		enabled := subset(mask)
		want := core.BaseRequirement
		for _, kind := range enabled {
			want += core.ModuleRequirement(kind)
		}
		if got := RequiredThreads(enabled); got != want {
			t.Fatalf("mask %07b: expected %d, got %d", mask, want, got)
		}
		if got := RequiredThreads(enabled); got != 1+bits.OnesCount(mask) {
			t.Fatalf("mask %07b: expected one worker per module plus the helper, got %d", mask, got)
		}
	}
}

func TestProvision_CreatesPoolSizedToRequirement(t *testing.T) {
	enabled := []core.ModuleKind{core.ModuleHelix, core.ModuleChat, core.ModulePubSub}
	provisioned, err := Provision("bot", enabled, 0, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	created, ok := provisioned.Pool.(*Pool)
	if !ok {
		t.Fatalf("expected internal pool, got %T", provisioned.Pool)
	}
	defer created.Close()

	if provisioned.Required != 4 || created.Capacity() != 4 {
		t.Fatalf("expected capacity 4, got required=%d capacity=%d", provisioned.Required, created.Capacity())
	}
	if !provisioned.Owned() || provisioned.Warning != nil {
		t.Fatalf("expected owned pool without warning")
	}
	if !strings.HasPrefix(created.Name(), "bot-") || len(created.Name()) != len("bot-")+8 {
		t.Fatalf("unexpected pool name %q", created.Name())
	}
}

func TestProvision_GeneratedNamesDoNotCollide(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		name := GenerateName("")
		if seen[name] {
			t.Fatalf("duplicate pool name %q", name)
		}
		seen[name] = true
	}
}

func TestProvision_WarnsOnUndersizedSuppliedPool(t *testing.T) {
	supplied := &stubPool{name: "shared", capacity: 2}
	enabled := []core.ModuleKind{core.ModuleHelix, core.ModuleKraken, core.ModuleChat}

	provisioned, err := Provision("bot", enabled, 0, supplied)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if provisioned.Pool != supplied {
		t.Fatalf("expected supplied pool to be kept")
	}
	if supplied.capacity != 2 {
		t.Fatalf("supplied pool must not be resized")
	}
	if provisioned.Owned() {
		t.Fatalf("supplied pool is not owned")
	}
	if provisioned.Warning == nil || !core.IsPoolUndersized(provisioned.Warning) {
		t.Fatalf("expected undersized warning, got %v", provisioned.Warning)
	}
	if provisioned.Warning.Metadata["required"] != 4 {
		t.Fatalf("expected required=4 in warning, got %#v", provisioned.Warning.Metadata)
	}
}

func TestProvision_AcceptsLargeEnoughSuppliedPool(t *testing.T) {
	supplied := &stubPool{name: "shared", capacity: 2}
	provisioned, err := Provision("bot", []core.ModuleKind{core.ModuleHelix}, 0, supplied)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if provisioned.Warning != nil {
		t.Fatalf("expected no warning, got %v", provisioned.Warning)
	}
	if provisioned.Required != 2 || provisioned.Capacity != 2 {
		t.Fatalf("unexpected provisioning %#v", provisioned)
	}
}

func TestProvision_AddsReservedWorkers(t *testing.T) {
	provisioned, err := Provision("bot", []core.ModuleKind{core.ModuleHelix, core.ModuleChat}, 1, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	created := provisioned.Pool.(*Pool)
	defer created.Close()
	if provisioned.Required != 4 || created.Capacity() != 4 {
		t.Fatalf("expected reserved worker on top of modules, got required=%d capacity=%d", provisioned.Required, created.Capacity())
	}

	supplied := &stubPool{name: "shared", capacity: 3}
	provisioned, err = Provision("bot", []core.ModuleKind{core.ModuleHelix, core.ModuleChat}, 1, supplied)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if provisioned.Warning == nil || provisioned.Warning.Metadata["required"] != 4 {
		t.Fatalf("expected undersized warning with required=4, got %v", provisioned.Warning)
	}
}
