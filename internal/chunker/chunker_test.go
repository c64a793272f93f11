package chunker

import (
	"testing"

	"github.com/quillreader/quill/speech"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "empty input",
			in:   "",
		},
		{
			name: "whitespace only",
			in:   "  \n\t\n  ",
		},
		{
			name: "single sentence",
			in:   "The quick brown fox jumps over the lazy dog.",
			want: []string{"The quick brown fox jumps over the lazy dog."},
		},
		{
			name: "two sentences",
			in:   "First things first. Second things second.",
			want: []string{"First things first.", "Second things second."},
		},
		{
			name: "question and exclamation",
			in:   "Really? Yes! Good.",
			want: []string{"Really?", "Yes!", "Good."},
		},
		{
			name: "abbreviation does not split",
			in:   "Dr. Smith met Mr. Jones. They talked.",
			want: []string{"Dr. Smith met Mr. Jones.", "They talked."},
		},
		{
			name: "decimal number does not split",
			in:   "The value is 3.14 exactly. Move on.",
			want: []string{"The value is 3.14 exactly.", "Move on."},
		},
		{
			name: "ellipsis does not split",
			in:   "Well... I suppose so. Fine.",
			want: []string{"Well... I suppose so.", "Fine."},
		},
		{
			name: "stacked punctuation",
			in:   "What?! No way. Honestly.",
			want: []string{"What?!", "No way.", "Honestly."},
		},
		{
			name: "closing quote stays with its sentence",
			in:   `He said "Stop!" Then he left.`,
			want: []string{`He said "Stop!"`, "Then he left."},
		},
		{
			name: "lowercase after period stays joined",
			in:   "see the docs. for details",
			want: []string{"see the docs. for details"},
		},
		{
			name: "blank line splits without punctuation",
			in:   "first paragraph\n\nsecond paragraph",
			want: []string{"first paragraph", "second paragraph"},
		},
		{
			name: "newline inside a sentence is kept",
			in:   "wrapped\nline here. Next one.",
			want: []string{"wrapped\nline here.", "Next one."},
		},
		{
			name: "short fragments are dropped",
			in:   "A\n\nfull sentence here.",
			want: []string{"full sentence here."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks %v, want %d", len(got), texts(got), len(tt.want))
			}
			for i, c := range got {
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
				if c.Text != tt.want[i] {
					t.Errorf("chunk %d text = %q, want %q", i, c.Text, tt.want[i])
				}
			}
		})
	}
}

func TestSplitOffsets(t *testing.T) {
	in := "One here. Two there.\n\nThree."
	got := Split(in)
	wantOffsets := []int{0, 10, 22}
	if len(got) != 3 {
		t.Fatalf("got %d chunks %v, want 3", len(got), texts(got))
	}
	for i, c := range got {
		if c.StartOffset != wantOffsets[i] {
			t.Errorf("chunk %d offset = %d, want %d", i, c.StartOffset, wantOffsets[i])
		}
		if in[c.StartOffset] != c.Text[0] {
			t.Errorf("chunk %d offset does not point at its first character", i)
		}
	}
}

func texts(chunks []speech.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
