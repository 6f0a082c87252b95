package engine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"codeownerscan/internal/models"
)

const (
	columnRepoName = "repo_name"
	columnPREvents = "pr_events"
)

// LoadTargets reads the repository list CSV at path.
//
// The header must contain repo_name; pr_events is optional and every other
// column is ignored. Names are normalised (see normalizeRepoSelector) and
// duplicates collapse to their first occurrence. Names that are not OWNER/NAME
// are kept: they resolve to invalid_repo_name rows.
func LoadTargets(path string) ([]models.RepositoryTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	targets, err := ReadTargets(f)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	return targets, nil
}

// ReadTargets is LoadTargets over a reader.
func ReadTargets(r io.Reader) ([]models.RepositoryTarget, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty input: missing header")
	}
	if err != nil {
		return nil, err
	}

	nameCol, eventsCol := -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch h {
		case columnRepoName:
			if nameCol < 0 {
				nameCol = i
			}
		case columnPREvents:
			if eventsCol < 0 {
				eventsCol = i
			}
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("header has no %s column", columnRepoName)
	}

	var targets []models.RepositoryTarget
	seen := make(map[string]struct{})
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if nameCol >= len(row) {
			continue
		}

		name := normalizeRepoSelector(row[nameCol])
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		t := models.RepositoryTarget{RepoName: name}
		if eventsCol >= 0 && eventsCol < len(row) {
			if v, err := strconv.ParseInt(strings.TrimSpace(row[eventsCol]), 10, 64); err == nil {
				t.PREvents = &v
			}
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// normalizeRepoSelector returns the lowercase OWNER/NAME for sel.
//
// Accepted forms:
//   - owner/repo
//   - https://github.com/owner/repo (any host, for GHES; extra path ignored)
//   - https://github.com/owner/repo.git
//   - github.com/owner/repo
//   - git@github.com:owner/repo.git
//
// Anything else is returned trimmed and lowercased.
func normalizeRepoSelector(sel string) string {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return ""
	}

	if strings.HasPrefix(sel, "github.com/") || strings.HasPrefix(sel, "www.github.com/") {
		sel = "https://" + sel
	}

	if strings.HasPrefix(sel, "git@") {
		if _, rest, ok := strings.Cut(sel, ":"); ok {
			if name, ok := ownerRepo(rest); ok {
				return name
			}
		}
		return strings.ToLower(sel)
	}

	if strings.HasPrefix(sel, "http://") || strings.HasPrefix(sel, "https://") {
		u, err := url.Parse(sel)
		if err != nil {
			return strings.ToLower(sel)
		}
		if name, ok := ownerRepo(u.Path); ok {
			return name
		}
		return strings.ToLower(sel)
	}

	return strings.ToLower(strings.TrimSuffix(strings.Trim(sel, "/"), ".git"))
}

func ownerRepo(p string) (string, bool) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 {
		return "", false
	}
	owner := parts[0]
	repo := strings.TrimSuffix(parts[1], ".git")
	if owner == "" || repo == "" {
		return "", false
	}
	return strings.ToLower(owner + "/" + repo), true
}
