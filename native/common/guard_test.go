package common

import (
	"errors"
	"strings"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuardBlocksPausedModule(t *testing.T) {
	pauses := pauseMap{"vault": true}

	err := Guard(pauses, "vault")
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if !strings.Contains(err.Error(), "vault") {
		t.Fatalf("expected error to name the module, got %q", err.Error())
	}

	if err := Guard(pauses, "lending"); err != nil {
		t.Fatalf("unexpected error for running module: %v", err)
	}
}

func TestGuardSkipsWhenUnconfigured(t *testing.T) {
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("nil view must disable the check: %v", err)
	}
	if err := Guard(pauseMap{"": true}, ""); err != nil {
		t.Fatalf("empty module name must disable the check: %v", err)
	}
}
