package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"codeownerscan/internal/models"

	"github.com/fatih/color"
)

// ConsoleSink streams records to the terminal.
//
// Formats:
//   - text: one coloured status line per record
//   - ndjson: one Event per line
//   - none: nothing
type ConsoleSink struct {
	writer io.Writer
	format string
	mu     sync.Mutex

	present *color.Color
	absent  *color.Color
	failed  *color.Color
}

func NewConsoleSink(w io.Writer, format string) (*ConsoleSink, error) {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	switch format {
	case "text", "ndjson", "none":
	default:
		return nil, fmt.Errorf("unsupported console format: %s", format)
	}

	return &ConsoleSink{
		writer:  w,
		format:  format,
		present: color.New(color.FgGreen),
		absent:  color.New(color.FgYellow),
		failed:  color.New(color.FgRed, color.Bold),
	}, nil
}

func (s *ConsoleSink) Write(r models.OwnershipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "none":
		return nil
	case "ndjson":
		if err := json.NewEncoder(s.writer).Encode(eventFromRecord(r)); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		if err := s.writeText(r); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	}
}

func (s *ConsoleSink) writeText(r models.OwnershipRecord) error {
	var err error
	switch r.Status() {
	case models.StatusPresent:
		_, err = fmt.Fprintf(s.writer, "[%s] %s: created %s, %d owners\n",
			s.present.Sprint("PRESENT"), r.RepoName, r.CreatedAt.UTC().Format(time.RFC3339), *r.OwnersCount)
	case models.StatusAbsent:
		_, err = fmt.Fprintf(s.writer, "[%s] %s\n", s.absent.Sprint("ABSENT"), r.RepoName)
	default:
		_, err = fmt.Fprintf(s.writer, "[%s] %s - %s\n", s.failed.Sprint("ERROR"), r.RepoName, r.Error)
	}
	return err
}

// Finish writes the run summary.
func (s *ConsoleSink) Finish(sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "ndjson":
		if err := json.NewEncoder(s.writer).Encode(Event{Type: "run.finished", Summary: &sum}); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	case "text":
		_, err := fmt.Fprintf(s.writer, "%d repositories: %d present, %d absent, %d errored, %d skipped\n",
			sum.Total, sum.Present, sum.Absent, sum.Errored, sum.Skipped)
		return err
	}
	return nil
}

func (s *ConsoleSink) Close() error { return nil }

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}
