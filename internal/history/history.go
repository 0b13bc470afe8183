// Package history keeps an append-only CSV log of the prompts used per run.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/oukeidos/ocap/internal/files"
)

const DefaultPath = "history_prompts.csv"

const timeLayout = "2006-01-02 15:04:05"

// Source labels which mode of ocap produced an entry.
const (
	SourceSingle     = "single"
	SourceSinglePlus = "single-plus"
	SourceFolder     = "folder"
	SourceFolderPlus = "folder-plus"
	SourceMulti      = "multi"
	SourceRetry      = "retry"
)

var header = []string{"date", "model", "source", "prompt1", "prompt2"}

type Entry struct {
	Time    time.Time
	Model   string
	Source  string
	Prompt1 string
	Prompt2 string
}

var mu sync.Mutex

// Append adds one row to the CSV at path, writing the header first when the
// file is new or empty.
func Append(path string, e Entry) error {
	if err := files.RejectSymlinkPath(path); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open prompt history: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat prompt history: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write prompt history header: %w", err)
		}
	}
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := w.Write([]string{ts.Format(timeLayout), e.Model, e.Source, e.Prompt1, e.Prompt2}); err != nil {
		return fmt.Errorf("write prompt history: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write prompt history: %w", err)
	}
	return nil
}

// Load reads every entry at path. A missing file yields no entries.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open prompt history: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var entries []Entry
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("read prompt history: %w", err)
		}
		if first {
			first = false
			if len(rec) > 0 && rec[0] == header[0] {
				continue
			}
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		ts, _ := time.ParseInLocation(timeLayout, rec[0], time.Local)
		entries = append(entries, Entry{
			Time:    ts,
			Model:   rec[1],
			Source:  rec[2],
			Prompt1: rec[3],
			Prompt2: rec[4],
		})
	}
	return entries, nil
}
