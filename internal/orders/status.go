package orders

// Phase is the progress of a single PlaceOrder attempt. Only Committed is
// ever visible to readers; Aborted leaves no trace in the ledger.
type Phase string

const (
	PhaseValidating Phase = "VALIDATING"
	PhaseReserving  Phase = "RESERVING"
	PhasePersisting Phase = "PERSISTING"
	PhaseCommitted  Phase = "COMMITTED"
	PhaseAborted    Phase = "ABORTED"
)

var validNext = map[Phase]map[Phase]bool{
	PhaseValidating: {PhaseReserving: true, PhaseAborted: true},
	PhaseReserving:  {PhasePersisting: true, PhaseAborted: true},
	PhasePersisting: {PhaseCommitted: true, PhaseAborted: true},
	PhaseCommitted:  {},
	PhaseAborted:    {},
}

func CanTransition(from, to Phase) bool {
	return validNext[from][to]
}

func (p Phase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseAborted
}
