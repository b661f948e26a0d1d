// Package eval collects the pieces shared by all six evaluator
// strategies: the abort-check helper and nothing else —
// each strategy's control representation is implemented in its own
// subpackage (plainrec, cps, oocps, sboocps, trampoline, trampolinepp)
// on purpose, since the differing control shape is the pedagogical
// point of keeping six strategies at all.
package eval

import (
	"sync/atomic"

	"github.com/evl-lang/evl/internal/everror"
)

// AbortFlag is the single byte of shared storage the host may set from
// any goroutine while exactly one goroutine runs an evaluator loop.
type AbortFlag = atomic.Bool

// CheckAbort raises Aborted when flag is non-nil and set. Every
// evaluator calls this at each loop iteration (bounce loop for
// trampolines, form-entry for the recursive/CPS ones).
func CheckAbort(flag *AbortFlag) error {
	if flag != nil && flag.Load() {
		return &everror.Aborted{}
	}
	return nil
}
