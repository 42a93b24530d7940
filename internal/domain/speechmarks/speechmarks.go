// Package speechmarks reads word-level speech timing exports. The format is
// newline-delimited JSON records in the shape the Polly speech-mark API
// emits; only records whose type is "word" carry timing the overlay engine
// consumes.
package speechmarks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/forPelevin/reelsmith/internal/types"
)

type record struct {
	Time  int    `json:"time"`
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Value string `json:"value"`
}

// Parse reads ND-JSON speech marks and returns the word marks in file order.
// Records are assumed chronological; they are not re-sorted.
func Parse(r io.Reader) ([]types.WordMark, error) {
	var out []types.WordMark
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("parse speech mark %q: %w", line, err)
		}
		if rec.Type != "word" {
			continue
		}
		text := strings.TrimSpace(rec.Value)
		if text == "" {
			continue
		}
		out = append(out, types.WordMark{Text: text, StartMS: rec.Time})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read speech marks: %w", err)
	}
	return out, nil
}

// ParseFile is Parse over a file on disk. A missing file yields no marks,
// not an error: overlays fall back to the static rendering path.
func ParseFile(path string) ([]types.WordMark, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open speech marks: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Write serializes word marks back to the ND-JSON export format so audio
// generated in one run can be recomposed later without the speech service.
func Write(w io.Writer, marks []types.WordMark) error {
	enc := json.NewEncoder(w)
	for _, m := range marks {
		rec := record{Time: m.StartMS, Type: "word", Value: m.Text}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write speech mark: %w", err)
		}
	}
	return nil
}

// WriteFile is Write to a file on disk.
func WriteFile(path string, marks []types.WordMark) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create speech marks: %w", err)
	}
	if err := Write(f, marks); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
