package models

import (
	"strings"
	"time"
)

// RepositoryTarget is one entry of the candidate repository list.
//
// RepoName is the canonical OWNER/NAME, lowercased so it can be joined against
// other datasets. PREvents is carried for provenance only.
type RepositoryTarget struct {
	RepoName string
	PREvents *int64
}

// Owner returns the account part of RepoName ("" when malformed).
func (t RepositoryTarget) Owner() string {
	owner, _, _ := t.split()
	return owner
}

// Name returns the repository part of RepoName ("" when malformed).
func (t RepositoryTarget) Name() string {
	_, name, _ := t.split()
	return name
}

// Valid reports whether RepoName has the OWNER/NAME shape.
func (t RepositoryTarget) Valid() bool {
	_, _, ok := t.split()
	return ok
}

func (t RepositoryTarget) split() (owner, name string, ok bool) {
	owner, name, found := strings.Cut(t.RepoName, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return owner, name, true
}

// Status is the coarse outcome of a resolved repository.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusError   Status = "error"
)

// OwnershipRecord is the single output row produced for a repository.
//
// Use Present, Absent or Failed to build one; they keep CreatedAt and
// OwnersCount set exactly when HasCodeowners is true.
type OwnershipRecord struct {
	RepoName      string
	HasCodeowners *bool
	CreatedAt     *time.Time
	OwnersCount   *int

	// Error is the annotation for repositories whose state could not be
	// determined ("kind: message"). Empty on success.
	Error string
}

// Present builds the record of a repository that declares a CODEOWNERS file.
func Present(repo string, createdAt time.Time, owners int) OwnershipRecord {
	has := true
	at := createdAt.UTC()
	if owners < 0 {
		owners = 0
	}
	return OwnershipRecord{
		RepoName:      repo,
		HasCodeowners: &has,
		CreatedAt:     &at,
		OwnersCount:   &owners,
	}
}

// Absent builds the record of a repository without a CODEOWNERS file.
func Absent(repo string) OwnershipRecord {
	has := false
	return OwnershipRecord{RepoName: repo, HasCodeowners: &has}
}

// Failed builds an annotated record for a repository whose state is unknown.
func Failed(repo, kind, message string) OwnershipRecord {
	annotation := kind
	if message != "" {
		annotation = kind + ": " + message
	}
	return OwnershipRecord{RepoName: repo, Error: annotation}
}

func (r OwnershipRecord) Status() Status {
	switch {
	case r.Error != "" || r.HasCodeowners == nil:
		return StatusError
	case *r.HasCodeowners:
		return StatusPresent
	default:
		return StatusAbsent
	}
}
