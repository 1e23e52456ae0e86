package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order; markdown headings first, then
// paragraphs, lines and words.
var DefaultSeparators = []string{"\n## ", "\n### ", "\n#### ", "\n\n", "\n", " "}

// Splitter cuts text into chunks of at most size runes. Consecutive chunks
// share up to overlap runes of trailing context.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrInvalidChunking, size, overlap)
	}

	return &Splitter{
		size:       size,
		overlap:    overlap,
		separators: DefaultSeparators,
	}, nil
}

// Split returns the chunks of text in order. Blank chunks are dropped.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.size {
		return []string{text}
	}

	res := make([]string, 0)
	for _, c := range s.split(text, s.separators) {
		if strings.TrimSpace(c) != "" {
			res = append(res, c)
		}
	}
	return res
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}
	if sep == "" {
		return s.hardCut(text)
	}

	var chunks, small []string
	for _, piece := range splitKeep(text, sep) {
		if utf8.RuneCountInString(piece) < s.size {
			small = append(small, piece)
			continue
		}

		if len(small) > 0 {
			chunks = append(chunks, s.merge(small)...)
			small = nil
		}
		chunks = append(chunks, s.split(piece, rest)...)
	}
	if len(small) > 0 {
		chunks = append(chunks, s.merge(small)...)
	}

	return chunks
}

// merge packs pieces greedily into chunks of at most size runes, carrying
// trailing pieces of at most overlap runes into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var (
		chunks  []string
		current []string
		lens    []int
		total   int
	)

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > s.size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, ""))
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= lens[0]
				current, lens = current[1:], lens[1:]
			}
		}
		current = append(current, p)
		lens = append(lens, n)
		total += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}

	return chunks
}

// hardCut slides a window of size runes by size-overlap until the end of the
// text is covered.
func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	l := len(runes)
	if l == 0 {
		return nil
	}

	step := s.size - s.overlap
	pos := 0
	res := make([]string, 0, l/step+1)

	for {
		end := min(pos+s.size, l)
		res = append(res, string(runes[pos:end]))
		if end >= l {
			break
		}

		pos += step
	}

	return res
}

// splitKeep splits on sep and keeps sep at the start of each following piece.
func splitKeep(text, sep string) []string {
	parts := strings.Split(text, sep)
	res := make([]string, 0, len(parts))
	if parts[0] != "" {
		res = append(res, parts[0])
	}
	for _, p := range parts[1:] {
		res = append(res, sep+p)
	}
	return res
}
