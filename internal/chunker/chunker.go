// Package chunker splits plain text into speakable chunks. A chunk is one
// sentence, or one paragraph-final fragment, annotated with the byte offset
// of its first character in the source text.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quillreader/quill/speech"
)

// minLength drops fragments too short to be worth speaking.
const minLength = 2

// abbreviations lists word forms whose trailing period does not end a
// sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"inc": true, "ltd": true, "co": true, "corp": true,
	"e.g": true, "i.e": true, "cf": true, "al": true,
	"no": true, "nos": true, "vol": true, "vols": true, "fig": true,
	"pg": true, "pp": true, "ed": true, "eds": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
	"nov": true, "dec": true,
}

// Split breaks text into chunks. Sentence boundaries are periods,
// exclamation and question marks followed by whitespace, except after
// abbreviations, inside decimal numbers and inside ellipses. A blank line
// always ends the current chunk.
func Split(text string) []speech.Chunk {
	var chunks []speech.Chunk

	emit := func(start, end int) {
		t := strings.TrimSpace(text[start:end])
		if len(t) < minLength {
			return
		}
		chunks = append(chunks, speech.Chunk{
			Index:       len(chunks),
			Text:        t,
			StartOffset: start,
		})
	}

	start := -1
	i := 0
	for i < len(text) {
		c := text[i]
		if start < 0 {
			if isSpace(c) {
				i++
				continue
			}
			start = i
		}

		switch {
		case c == '\n' && blankLineAt(text, i):
			emit(start, i)
			start = -1
			i++
		case (c == '.' || c == '!' || c == '?') && sentenceEndsAt(text, i):
			end := i + 1
			// Closing quotes and brackets belong to the sentence.
			for end < len(text) && isClosing(text[end]) {
				end++
			}
			emit(start, end)
			start = -1
			i = end
		default:
			i++
		}
	}
	if start >= 0 {
		emit(start, len(text))
	}
	return chunks
}

// blankLineAt reports whether the newline at i is followed only by
// whitespace up to the next newline or the end of text.
func blankLineAt(text string, i int) bool {
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case '\n':
			return true
		case ' ', '\t', '\r':
		default:
			return false
		}
	}
	return true
}

// sentenceEndsAt decides whether terminal punctuation at i really closes a
// sentence.
func sentenceEndsAt(text string, i int) bool {
	c := text[i]

	// Consume runs like "?!" or "..." from their last character only.
	if i+1 < len(text) && isTerminator(text[i+1]) {
		return false
	}

	if c == '.' {
		// Two or more consecutive periods are an ellipsis, not an end.
		if i > 0 && text[i-1] == '.' {
			return false
		}
		if i > 0 && i+1 < len(text) && isDigit(text[i-1]) && isDigit(text[i+1]) {
			return false
		}
		if isAbbreviation(wordBefore(text, i)) {
			return false
		}
	}

	// Skip closing quotes and brackets after the punctuation.
	j := i + 1
	for j < len(text) && isClosing(text[j]) {
		j++
	}
	if j >= len(text) {
		return true
	}
	if !isSpace(text[j]) {
		return false
	}
	if c == '!' || c == '?' {
		return true
	}

	// A period needs the next word to look like a sentence start.
	for j < len(text) && isSpace(text[j]) {
		j++
	}
	if j >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[j:])
	return unicode.IsUpper(r) || unicode.IsDigit(r) || text[j] == '"' || text[j] == '\''
}

// wordBefore returns the word immediately preceding the punctuation at i,
// lowercased and without the final period.
func wordBefore(text string, i int) string {
	start := i
	for start > 0 && !isSpace(text[start-1]) {
		start--
	}
	return strings.ToLower(text[start:i])
}

func isAbbreviation(word string) bool {
	if word == "" {
		return false
	}
	if abbreviations[word] || abbreviations[strings.TrimSuffix(word, ".")] {
		return true
	}
	// Single letters and dotted forms like "u.s" read as initials.
	if len(word) == 1 {
		return true
	}
	return strings.Contains(word, ".")
}

func isTerminator(b byte) bool { return b == '.' || b == '!' || b == '?' }

func isClosing(b byte) bool {
	return b == '"' || b == '\'' || b == ')' || b == ']'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
