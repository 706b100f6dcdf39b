package gateway

import (
	"sync"

	apperrors "github.com/lanepoint/realtime-gateway/internal/errors"
)

// Admission gates connections per organization. It owns the live-count map
// exclusively; every mutation goes through Admit and Release.
type Admission struct {
	mu      sync.Mutex
	counts  map[string]int
	ceiling int
}

// DefaultCeiling is the per-organization connection limit when none is configured.
const DefaultCeiling = 100

func NewAdmission(ceiling int) *Admission {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Admission{counts: make(map[string]int), ceiling: ceiling}
}

// Admit reserves a slot for orgID. At the ceiling it returns a
// CONNECTION_LIMIT error and leaves the count untouched.
func (a *Admission) Admit(orgID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.counts[orgID] >= a.ceiling {
		return apperrors.NewConnectionLimit("connection limit reached")
	}
	a.counts[orgID]++
	return nil
}

// Release returns one admitted slot. Callers guarantee exactly one Release
// per successful Admit; the count still never goes negative.
func (a *Admission) Release(orgID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch n := a.counts[orgID]; {
	case n > 1:
		a.counts[orgID] = n - 1
	case n == 1:
		delete(a.counts, orgID)
	}
}

// Count returns the live count for one organization.
func (a *Admission) Count(orgID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[orgID]
}

// Counts returns a snapshot of all live counts.
func (a *Admission) Counts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.counts))
	for org, n := range a.counts {
		out[org] = n
	}
	return out
}

// Total returns the live count across all organizations.
func (a *Admission) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, n := range a.counts {
		total += n
	}
	return total
}
