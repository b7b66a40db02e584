// file: services/provisioner_test.go
package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"CTFBox/models"
)

func TestProvisionBuildsFullPortRange(t *testing.T) {
	runtime := newFakeRuntime()
	p := NewProvisioner(runtime)
	ch := dynamicChallenge(1, 8000, 8002)

	_, mapping, err := p.Provision(context.Background(), ch, NewSettings(nil), "CTFBox{test}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spec := runtime.lastSpec
	if len(spec.Ports) != 3 {
		t.Fatalf("expected 3 ports in the create spec, got %v", spec.Ports)
	}
	sort.Ints(spec.Ports)
	for i, want := range []int{8000, 8001, 8002} {
		if spec.Ports[i] != want {
			t.Fatalf("expected port %d at index %d, got %v", want, i, spec.Ports)
		}
	}
	if len(mapping) != 3 {
		t.Fatalf("expected 3 resolved mappings, got %v", mapping)
	}
}

func TestProvisionInjectsFlagEnv(t *testing.T) {
	runtime := newFakeRuntime()
	p := NewProvisioner(runtime)
	ch := dynamicChallenge(1, 8000, 8000)

	if _, _, err := p.Provision(context.Background(), ch, NewSettings(nil), "CTFBox{abc}"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, env := range runtime.lastSpec.Env {
		if env == "CTFBOX_FLAG=CTFBox{abc}" {
			found = true
		}
	}
	if !found {
		t.Fatalf("flag env not injected, got %v", runtime.lastSpec.Env)
	}
}

func TestProvisionAppliesResourceLimits(t *testing.T) {
	runtime := newFakeRuntime()
	p := NewProvisioner(runtime)
	ch := dynamicChallenge(1, 8000, 8000)
	st := NewSettings(map[string]string{
		"container_maxmemory": "256",
		"container_maxcpu":    "0.5",
	})

	if _, _, err := p.Provision(context.Background(), ch, st, "f"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runtime.lastSpec.MemoryMB != 256 {
		t.Fatalf("expected 256 MB memory limit, got %d", runtime.lastSpec.MemoryMB)
	}
	if runtime.lastSpec.CPUFraction != 0.5 {
		t.Fatalf("expected 0.5 cpu fraction, got %f", runtime.lastSpec.CPUFraction)
	}
}

func TestProvisionInvalidPortRange(t *testing.T) {
	p := NewProvisioner(newFakeRuntime())
	for _, ch := range []*models.Challenge{
		dynamicChallenge(1, 9000, 8000),
		dynamicChallenge(2, 0, 0),
	} {
		_, _, err := p.Provision(context.Background(), ch, NewSettings(nil), "f")
		var provErr *ProvisionError
		if !errors.As(err, &provErr) {
			t.Fatalf("challenge %d: expected ProvisionError, got %v", ch.ID, err)
		}
	}
}

func TestProvisionInvalidVolumesJSON(t *testing.T) {
	runtime := newFakeRuntime()
	p := NewProvisioner(runtime)
	ch := dynamicChallenge(1, 8000, 8000)
	ch.DockerVolumes = "{not json"

	_, _, err := p.Provision(context.Background(), ch, NewSettings(nil), "f")
	var provErr *ProvisionError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProvisionError, got %v", err)
	}
	if len(runtime.createCalls) != 0 {
		t.Fatal("invalid volumes must fail before any runtime call")
	}
}

func TestParseVolumes(t *testing.T) {
	binds, err := parseVolumes(`{"/data/chall": {"bind": "/srv/app", "mode": "ro"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(binds) != 1 || binds[0] != "/data/chall:/srv/app:ro" {
		t.Fatalf("unexpected binds: %v", binds)
	}

	// mode 缺省为 rw
	binds, err = parseVolumes(`{"/data": {"bind": "/srv"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(binds) != 1 || !strings.HasSuffix(binds[0], ":rw") {
		t.Fatalf("expected rw default, got %v", binds)
	}

	if _, err := parseVolumes(`{"/data": {"mode": "rw"}}`); err == nil {
		t.Fatal("missing bind target should be rejected")
	}

	binds, err = parseVolumes("")
	if err != nil || binds != nil {
		t.Fatalf("empty volumes should be a no-op, got %v, %v", binds, err)
	}
}
