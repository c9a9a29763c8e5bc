package workflow

// EventKind discriminates driver events.
type EventKind string

const (
	// EventNode reports that a node ran and the state advanced.
	EventNode EventKind = "node"
	// EventComplete carries the final response; the last event of every
	// run that was not cancelled. Failed runs complete too, with an
	// explanatory answer instead of an error.
	EventComplete EventKind = "complete"
)

// Event is one element of the run's lazy event sequence. Consumers
// must drain the channel; the driver blocks on a slow consumer rather
// than dropping events.
type Event struct {
	Kind          EventKind
	Node          NodeName
	FinalResponse string
}
