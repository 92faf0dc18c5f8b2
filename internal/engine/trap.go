package engine

import "github.com/wasmine-go/wasmine/internal/ssa"

// Trap is the error type an engine returns when execution aborts via a
// ssa.TrapReason rather than a normal return (§7). It is the host-boundary
// form of the in-band trap a recover() at a call's entry point catches.
type Trap struct {
	Reason    ssa.TrapReason
	FuncIndex uint32
	DebugName string
}

func (t *Trap) Error() string {
	if t.DebugName != "" {
		return "wasm trap: " + t.Reason.String() + " (in " + t.DebugName + ")"
	}
	return "wasm trap: " + t.Reason.String()
}

// AsTrap reports whether err is a *Trap and, if so, returns it.
func AsTrap(err error) (*Trap, bool) {
	t, ok := err.(*Trap)
	return t, ok
}
