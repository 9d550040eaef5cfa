// Package metrics exposes the service's domain counters.
package metrics

// Collector receives domain events worth counting. Implementations must be
// safe for concurrent use.
type Collector interface {
	// AssignmentsGenerated counts assignment rows written for a schedule.
	AssignmentsGenerated(count int)
	// AssignmentSoftFailure counts regenerations that failed after the
	// schedule mutation committed.
	AssignmentSoftFailure()
	// IncidentTransition counts status changes.
	IncidentTransition(from, to string)
	// Acknowledgment counts acknowledgments by channel.
	Acknowledgment(channel string)
}

// Nop discards everything.
type Nop struct{}

var _ Collector = Nop{}

func NewNop() Nop { return Nop{} }

func (Nop) AssignmentsGenerated(int) {}
func (Nop) AssignmentSoftFailure() {}
func (Nop) IncidentTransition(string, string) {}
func (Nop) Acknowledgment(string) {}
