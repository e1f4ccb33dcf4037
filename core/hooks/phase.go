// Package hooks lets arbitrary code attach behavior to any phase of
// any operation without modifying the kernel. Hooks are collected at
// registration time and resolved lazily into per-(model, alias, phase)
// ordered lists, which are memoized.
package hooks

// Phase is a named stage in the fixed execution order.
type Phase string

const (
	PhasePreTxBegin   Phase = "PRE_TX_BEGIN"
	PhaseStartTx      Phase = "START_TX"
	PhasePreHandler   Phase = "PRE_HANDLER"
	PhaseHandler      Phase = "HANDLER"
	PhasePostHandler  Phase = "POST_HANDLER"
	PhasePostCommit   Phase = "POST_COMMIT"
	PhaseEndTx        Phase = "END_TX"
	PhasePostResponse Phase = "POST_RESPONSE"
)

// Order is the total order of pipeline phases.
var Order = []Phase{
	PhasePreTxBegin,
	PhaseStartTx,
	PhasePreHandler,
	PhaseHandler,
	PhasePostHandler,
	PhasePostCommit,
	PhaseEndTx,
	PhasePostResponse,
}

// IsSystem reports whether the phase is a fixed system anchor that
// user hooks cannot attach to.
func (p Phase) IsSystem() bool {
	return p == PhaseStartTx || p == PhaseEndTx
}

// Valid reports whether p names a known phase.
func (p Phase) Valid() bool {
	for _, o := range Order {
		if o == p {
			return true
		}
	}
	return false
}
