package negotiation

// forwardTransitions is the strict-mode adjacency map. on_hold is handled
// separately: it is reachable from every open status and returns to the
// status it was entered from.
var forwardTransitions = map[Status][]Status{
	StatusPendingOutreach:  {StatusOutreachSent},
	StatusOutreachSent:     {StatusAwaitingResponse},
	StatusAwaitingResponse: {StatusNegotiating},
	StatusNegotiating:      {StatusAgreed, StatusDeclined},
}

// Machine decides whether a negotiation_status change is allowed.
// A liberal machine accepts any member of the status enum; a strict one
// enforces the pipeline.
type Machine struct {
	Strict bool
}

// Check validates moving the negotiation in d from one status to another.
func (m Machine) Check(d Data, from, to Status) error {
	if !to.Valid() {
		return invalid("status", "unknown negotiation status %q", to)
	}
	if !m.Strict {
		return nil
	}

	if from == to {
		return invalid("status", "negotiation is already %s", to)
	}
	if from.Terminal() {
		return invalid("status", "negotiation is closed as %s", from)
	}

	if to == StatusOnHold {
		return nil
	}

	if from == StatusOnHold {
		prior, ok := heldFrom(d)
		if !ok || prior == to {
			// Legacy documents may lack the status_change into on_hold.
			return nil
		}
		return invalid("status", "on_hold can only return to %s", prior)
	}

	for _, next := range forwardTransitions[from] {
		if next == to {
			return nil
		}
	}
	return invalid("status", "cannot move from %s to %s", from, to)
}

// Allowed lists the statuses a strict machine accepts from the current state.
func (m Machine) Allowed(d Data, from Status) []Status {
	var out []Status
	for _, s := range Statuses {
		if m.Check(d, from, s) == nil && s != from {
			out = append(out, s)
		}
	}
	return out
}
