package batch

// Status is a batch's lifecycle state.
type Status int

const (
	// Pending batches are mutable drafts awaiting verification.
	Pending Status = iota
	// Rejected batches failed verification and may be resubmitted.
	Rejected
	// Confirmed batches back outstanding fungible supply once
	// fractionalized.
	Confirmed
	// DetokenizationRequested batches are locked under an in-flight
	// detokenization request.
	DetokenizationRequested
	// RetirementRequested batches are locked under an in-flight
	// retirement request.
	RetirementRequested
	// DetokenizationFinalized batches have been re-extracted as discrete
	// records.
	DetokenizationFinalized
	// RetirementFinalized batches have been permanently retired.
	RetirementFinalized
)

var statusNames = map[Status]string{
	Pending:                 "Pending",
	Rejected:                "Rejected",
	Confirmed:               "Confirmed",
	DetokenizationRequested: "DetokenizationRequested",
	RetirementRequested:     "RetirementRequested",
	DetokenizationFinalized: "DetokenizationFinalized",
	RetirementFinalized:     "RetirementFinalized",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// transitions is the complete edge table of the batch state machine.
// Anything absent here is a state error.
var transitions = map[Status][]Status{
	Pending:                 {Rejected, Confirmed},
	Rejected:                {Pending},
	Confirmed:               {DetokenizationRequested, RetirementRequested},
	DetokenizationRequested: {DetokenizationFinalized, Confirmed},
	RetirementRequested:     {RetirementFinalized, Confirmed},
}

// CanTransition reports whether the edge from -> to exists.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether a batch in this status backs outstanding fungible
// supply (once fractionalized).
func (s Status) Active() bool {
	switch s {
	case Confirmed, DetokenizationRequested, RetirementRequested:
		return true
	}
	return false
}
