// Package common holds the cross-cutting checks shared by the market's
// native modules: the admin pause guard and per-address operation quotas.
package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused rejects operations against a module the admin has halted.
var ErrModulePaused = errors.New("common: module paused")

// PauseView exposes the admin pause flags to the module engines.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the named module is paused. A nil view or
// an empty module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
