package bus

import (
	"encoding/json"
	"fmt"

	"github.com/mailtriage/sentryd/pkg/verdict"
)

// EventType discriminates the tagged union carried on a Bus.
type EventType string

const (
	EventExpandedResultCount EventType = "ExpandedResultCount"
	EventProgress            EventType = "Progress"
	EventAnalysisDone        EventType = "AnalysisDone"
	EventError               EventType = "Error"
	EventJobComplete         EventType = "JobComplete"

	// eventLagged is not part of the wire contract in spec.md §6 — it never
	// reaches the transport layer. It is how a Bus tells one lagging
	// subscriber that n events were dropped from its buffer and it must
	// reconcile from the Job's results log (§4.1).
	eventLagged EventType = "lagged"
)

// progressValue mirrors the bit-exact wire shape for a Progress event:
// {"id":…,"analysisName":…,"verdict":{"kind":…,"value":…}}.
type progressValue struct {
	ID           uint64          `json:"id"`
	AnalysisName string          `json:"analysisName"`
	Verdict      verdict.Verdict `json:"verdict"`
}

// Event is the tagged union published on a per-job Bus: ExpandedResultCount,
// Progress, AnalysisDone, Error, and the terminal JobComplete, per spec.md
// §3. Error and JobComplete are closing — a Bus never publishes anything
// after one of them.
type Event struct {
	typ EventType

	delta    int64
	result   verdict.Result
	analyzer string
	message  string
	lagged   int64
}

// NewExpandedResultCount reports that the job's total expected verdict
// count grew by delta.
func NewExpandedResultCount(delta int64) Event {
	return Event{typ: EventExpandedResultCount, delta: delta}
}

// NewProgress reports that a verdict was produced.
func NewProgress(r verdict.Result) Event {
	return Event{typ: EventProgress, result: r}
}

// NewAnalysisDone reports that an analyzer has no outstanding work.
func NewAnalysisDone(analyzer string) Event {
	return Event{typ: EventAnalysisDone, analyzer: analyzer}
}

// NewError reports a fatal, job-terminating error.
func NewError(message string) Event {
	return Event{typ: EventError, message: message}
}

// NewJobComplete is the terminal success event, sent at most once.
func NewJobComplete() Event {
	return Event{typ: EventJobComplete}
}

func newLagged(n int64) Event {
	return Event{typ: eventLagged, lagged: n}
}

// Type reports which variant the event carries.
func (e Event) Type() EventType { return e.typ }

// Delta returns the ExpandedResultCount payload. Only meaningful when
// Type() == EventExpandedResultCount.
func (e Event) Delta() int64 { return e.delta }

// Result returns the Progress payload. Only meaningful when
// Type() == EventProgress.
func (e Event) Result() verdict.Result { return e.result }

// Analyzer returns the AnalysisDone payload. Only meaningful when
// Type() == EventAnalysisDone.
func (e Event) Analyzer() string { return e.analyzer }

// Message returns the Error payload. Only meaningful when
// Type() == EventError.
func (e Event) Message() string { return e.message }

// Lagged returns the number of events this subscriber missed. Only
// meaningful when Type() == eventLagged; zero for every event actually
// published by a producer.
func (e Event) Lagged() int64 { return e.lagged }

// IsClosing reports whether no further events follow this one on the bus.
func (e Event) IsClosing() bool {
	return e.typ == EventError || e.typ == EventJobComplete
}

// IsLagged reports whether this is the internal gap marker a Bus delivers
// to a subscriber in place of one or more dropped events. It never appears
// on the wire; callers that observe it must reconcile against the Job's
// results log.
func (e Event) IsLagged() bool { return e.typ == eventLagged }

// MarshalJSON renders the bit-exact shapes required by spec.md §6.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.typ {
	case EventExpandedResultCount:
		return json.Marshal(struct {
			Type  EventType `json:"type"`
			Value int64     `json:"value"`
		}{e.typ, e.delta})
	case EventProgress:
		return json.Marshal(struct {
			Type  EventType     `json:"type"`
			Value progressValue `json:"value"`
		}{e.typ, progressValue{
			ID:           e.result.ID,
			AnalysisName: e.result.Analyzer,
			Verdict:      e.result.Verdict,
		}})
	case EventAnalysisDone:
		return json.Marshal(struct {
			Type  EventType `json:"type"`
			Value string    `json:"value"`
		}{e.typ, e.analyzer})
	case EventError:
		return json.Marshal(struct {
			Type  EventType `json:"type"`
			Value string    `json:"value"`
		}{e.typ, e.message})
	case EventJobComplete:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{e.typ})
	default:
		return nil, fmt.Errorf("bus: event type %q has no wire representation", e.typ)
	}
}
