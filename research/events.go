package research

import "time"

// EventKind names a side-channel progress event.
type EventKind string

const (
	EventPhaseTransition  EventKind = "phase_transition"
	EventQueriesGenerated EventKind = "queries_generated"
	EventSourcesMerged    EventKind = "sources_merged"
	EventLoopComplete     EventKind = "loop_complete"
	EventFinalizing       EventKind = "finalizing"
)

// Event is one best-effort progress notification. It MUST NOT carry source
// contents until finalization completes — Count fields
// convey volume, never the underlying text/URL.
type Event struct {
	Kind      EventKind
	Phase     Phase
	LoopIndex int
	Count     int
	At        time.Time
}

func newEvent(kind EventKind, phase Phase, loopIndex, count int) Event {
	return Event{Kind: kind, Phase: phase, LoopIndex: loopIndex, Count: count, At: timeNow()}
}
