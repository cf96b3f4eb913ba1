package types

import "fmt"

// Unset is the FinalScore carried by a Result until the coordinator bands it.
const Unset = -1.0

// WorkItem is one student's row of rough marks. Row has exactly rowWidth
// entries and is never modified after load.
type WorkItem struct {
	ID  int       `json:"id"`
	Row []float64 `json:"row"`
}

// Result is the outcome of scoring one WorkItem.
type Result struct {
	ID           int     `json:"id"`
	InitialScore float64 `json:"initial_score"`
	FinalScore   float64 `json:"final_score"`
}

// NewResult returns a Result whose final score has not been assigned yet.
func NewResult(id int, initial float64) Result {
	return Result{ID: id, InitialScore: initial, FinalScore: Unset}
}

// Banded reports whether the final score has been assigned.
func (r Result) Banded() bool { return r.FinalScore != Unset }

// Tag classifies an Envelope.
type Tag int

const (
	TagAssignID Tag = iota
	TagAssignData
	TagTerminate
	TagResult
	// TagAbort asks every process to stop immediately.
	TagAbort
	// TagWelcome is used by network transports to announce a rank. It never
	// reaches the coordinator or worker loops.
	TagWelcome
)

func (t Tag) String() string {
	switch t {
	case TagAssignID:
		return "assign_id"
	case TagAssignData:
		return "assign_data"
	case TagTerminate:
		return "terminate"
	case TagResult:
		return "result"
	case TagAbort:
		return "abort"
	case TagWelcome:
		return "welcome"
	default:
		return fmt.Sprintf("tag(%d)", int(t))
	}
}

// Tags lists every protocol tag in declaration order.
var Tags = []Tag{TagAssignID, TagAssignData, TagTerminate, TagResult, TagAbort}

// Envelope is the single message type exchanged between processes.
// Which fields are meaningful depends on Tag:
//
//	assign_data: Exchange, Row
//	assign_id:   Exchange, ID
//	result:      Result
//	abort:       Reason
//	welcome:     ID (assigned rank), Size
//
// Source is filled in by the receiving transport.
type Envelope struct {
	Tag      Tag       `json:"tag"`
	Source   int       `json:"source"`
	Exchange uint64    `json:"exchange,omitempty"`
	ID       int       `json:"id,omitempty"`
	Size     int       `json:"size,omitempty"`
	Row      []float64 `json:"row,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}
