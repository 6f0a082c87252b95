package output

import (
	"time"

	"codeownerscan/internal/models"
)

// Event is one line of the NDJSON console stream.
//
// Types:
//   - record: one per written repository
//   - run.finished: the summary, last line of a run
type Event struct {
	Type          string     `json:"type"`
	Repo          string     `json:"repo,omitempty"`
	Status        string     `json:"status,omitempty"`
	HasCodeowners *bool      `json:"has_codeowners,omitempty"`
	CreatedAt     *time.Time `json:"codeowners_created_at,omitempty"`
	OwnersCount   *int       `json:"owners_count,omitempty"`
	Error         string     `json:"error,omitempty"`

	*Summary
}

// Summary counts the outcome of a run.
type Summary struct {
	Total    int `json:"total"`
	Skipped  int `json:"skipped"`
	Present  int `json:"present"`
	Absent   int `json:"absent"`
	Errored  int `json:"errored"`
	ExitCode int `json:"exit_code"`
}

// Add counts rec.
func (s *Summary) Add(rec models.OwnershipRecord) {
	switch rec.Status() {
	case models.StatusPresent:
		s.Present++
	case models.StatusAbsent:
		s.Absent++
	default:
		s.Errored++
	}
}

func eventFromRecord(r models.OwnershipRecord) Event {
	return Event{
		Type:          "record",
		Repo:          r.RepoName,
		Status:        string(r.Status()),
		HasCodeowners: r.HasCodeowners,
		CreatedAt:     r.CreatedAt,
		OwnersCount:   r.OwnersCount,
		Error:         r.Error,
	}
}
