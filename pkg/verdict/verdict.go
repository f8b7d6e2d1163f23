// Package verdict defines the analyzer output types shared across the
// orchestration core: Verdict (an analyzer's typed, opaque finding) and
// Result (a Verdict tagged with a unique id and the analyzer that produced
// it).
package verdict

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// KindError is the conventional kind used to report a task or analyzer
// failure as a verdict instead of aborting the job. See Error.
const KindError = "error"

// KindEntity is the conventional kind analyzers use as an intra-job feedback
// signal: any analyzer may emit an entity verdict, and the entity analyzer
// consumes them via command.CatchAllVerdicts(KindEntity).
const KindEntity = "entity"

// Verdict is a single analyzer finding. Kind discriminates the shape of
// Value, which is an opaque structured document (typically a map or a
// domain struct the analyzer controls).
type Verdict struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// Error wraps any value as an "error" kind verdict. Used by tasks that fail
// instead of aborting silently, preserving the AnalysisCommand counter
// invariants (every spawn must still produce exactly one Progress event).
func Error(v any) Verdict {
	return Verdict{Kind: KindError, Value: v}
}

// Entity wraps a value as an "entity" kind verdict, the conventional
// cross-analyzer feedback signal described in the package doc.
func Entity(v any) Verdict {
	return Verdict{Kind: KindEntity, Value: v}
}

// Result is a Verdict tagged with a process-unique random id and the name of
// the analyzer that produced it. Immutable after construction.
type Result struct {
	ID        uint64    `json:"id"`
	Analyzer  string    `json:"analyzer"`
	Verdict   Verdict   `json:"verdict"`
	CreatedAt time.Time `json:"-"`
}

// NewResult stamps v with a fresh random id and the producing analyzer's
// name. Collision risk is accepted at 64-bit random, matching the data
// model's invariant that id is unique within a process run, not globally.
func NewResult(analyzer string, v Verdict) Result {
	return Result{
		ID:        randomID(),
		Analyzer:  analyzer,
		Verdict:   v,
		CreatedAt: time.Now(),
	}
}

func randomID() uint64 {
	var b [8]byte
	// crypto/rand never fails on supported platforms; a zero id on the
	// extremely unlikely read error is an acceptable degradation (still
	// only risks a collision, not a crash).
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}
