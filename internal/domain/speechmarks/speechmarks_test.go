package speechmarks

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/reelsmith/internal/types"
)

func TestParse_FiltersNonWordRecords(t *testing.T) {
	in := strings.Join([]string{
		`{"time":0,"type":"sentence","start":0,"end":11,"value":"Hello world"}`,
		`{"time":6,"type":"word","start":0,"end":5,"value":"Hello"}`,
		``,
		`{"time":120,"type":"viseme","value":"p"}`,
		`{"time":374,"type":"word","start":6,"end":11,"value":"world"}`,
	}, "\n")

	marks, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(marks) != 2 {
		t.Fatalf("expected 2 word marks, got %d", len(marks))
	}
	if marks[0].Text != "Hello" || marks[0].StartMS != 6 {
		t.Fatalf("unexpected first mark: %+v", marks[0])
	}
	if marks[1].Text != "world" || marks[1].StartMS != 374 {
		t.Fatalf("unexpected second mark: %+v", marks[1])
	}
}

func TestParse_BadJSON(t *testing.T) {
	if _, err := Parse(strings.NewReader(`{"time":0,`)); err == nil {
		t.Fatal("expected error for malformed record")
	}
}

func TestParseFile_MissingIsEmptyNotError(t *testing.T) {
	marks, err := ParseFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if len(marks) != 0 {
		t.Fatalf("expected no marks, got %d", len(marks))
	}
}

func TestWriteParse_KeepsOrderAndTimes(t *testing.T) {
	in := marksFixture()
	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := Parse(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d marks, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mark %d changed: %+v != %+v", i, out[i], in[i])
		}
	}
}

func marksFixture() []types.WordMark {
	return []types.WordMark{
		{Text: "Where", StartMS: 6},
		{Text: "am", StartMS: 410},
		{Text: "I", StartMS: 655},
	}
}
