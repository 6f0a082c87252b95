package output

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeownerscan/internal/models"
)

// Columns is the output header. The first four columns are the record; error
// is empty for rows whose state was resolved.
var Columns = []string{"repo_name", "has_codeowners", "codeowners_created_at", "owners_count", "error"}

// ResumeState is the set of repositories the output already holds a row for.
type ResumeState map[string]struct{}

func (r ResumeState) Has(repo string) bool {
	_, ok := r[strings.ToLower(repo)]
	return ok
}

// CSVSink appends records to the output CSV. Every Write is synced to disk
// before it returns, so a row that was written survives a crash and a row
// that was not leaves no trace.
type CSVSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  bytes.Buffer
	w    *csv.Writer
}

// OpenCSVSink opens path for appending and returns the repositories it
// already contains.
//
// A missing or empty file gets the header. An existing file must start with
// the header; a trailing row without its newline (a write torn by a crash) is
// truncated away so the repository is resolved again.
func OpenCSVSink(path string) (*CSVSink, ResumeState, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, errors.New("output path required")
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output file: %w", err)
	}

	state, needHeader, err := recoverExisting(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("output %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, nil, fmt.Errorf("output %s: %w", path, err)
	}

	// Appends go through O_APPEND so each row lands at the end even if
	// something else touched the file.
	f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output file: %w", err)
	}

	s := &CSVSink{path: path, file: f}
	s.w = csv.NewWriter(&s.buf)
	if needHeader {
		if err := s.writeRow(Columns); err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("write header: %w", err)
		}
	}
	return s, state, nil
}

// recoverExisting reads what a previous run left in f. It truncates a torn
// trailing row and reports whether the header still has to be written.
func recoverExisting(f *os.File) (ResumeState, bool, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false, err
	}

	if n := len(data); n > 0 && data[n-1] != '\n' {
		keep := bytes.LastIndexByte(data, '\n') + 1
		if err := f.Truncate(int64(keep)); err != nil {
			return nil, false, fmt.Errorf("truncate torn row: %w", err)
		}
		data = data[:keep]
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if len(data) > 0 {
			if err := f.Truncate(0); err != nil {
				return nil, false, err
			}
		}
		return ResumeState{}, true, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, false, fmt.Errorf("read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(Columns, ",") {
		return nil, false, fmt.Errorf("unexpected header %q (want %q); refusing to append", strings.Join(header, ","), strings.Join(Columns, ","))
	}

	state := ResumeState{}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("read rows: %w", err)
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		state[strings.ToLower(strings.TrimSpace(row[0]))] = struct{}{}
	}
	return state, false, nil
}

func (s *CSVSink) Path() string { return s.path }

// Write appends rec and syncs the file.
func (s *CSVSink) Write(rec models.OwnershipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("csv sink is closed")
	}
	return s.writeRow(encodeRecord(rec))
}

func (s *CSVSink) writeRow(row []string) error {
	s.buf.Reset()
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	// One write call per row keeps appends whole.
	if _, err := s.file.Write(s.buf.Bytes()); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func encodeRecord(rec models.OwnershipRecord) []string {
	row := []string{rec.RepoName, "", "", "", rec.Error}
	if rec.HasCodeowners != nil {
		row[1] = strconv.FormatBool(*rec.HasCodeowners)
	}
	if rec.CreatedAt != nil {
		row[2] = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	if rec.OwnersCount != nil {
		row[3] = strconv.Itoa(*rec.OwnersCount)
	}
	return row
}
