package workflow

// RouteFromSupervisor maps the supervisor's routing hint onto a node.
// Pure and total: unknown hints resolve by the configured policy
// (handled by the driver); here they map to END.
func RouteFromSupervisor(snap *Snapshot) NodeName {
	switch snap.NextAgent {
	case SQLAgent:
		return NodeSQLAgent
	case RESTAgent:
		return NodeRESTAgent
	case SOAPAgent:
		return NodeSOAPAgent
	case NextConsolidate:
		return NodeConsolidator
	default:
		return NodeEnd
	}
}

// RouteFromAgent decides where control goes after an agent ran: back to
// the supervisor while steps remain, otherwise to the consolidator or
// straight to END when consolidation is not required.
func RouteFromAgent(snap *Snapshot) NodeName {
	if snap.RemainingSteps() > 0 && snap.ShouldContinue {
		return NodeSupervisor
	}
	// The consolidator also owns the no-consolidation fast path (a
	// single result formatted deterministically), so the last agent
	// always hands off to it; it never runs a merge when the plan
	// didn't ask for one.
	return NodeConsolidator
}
