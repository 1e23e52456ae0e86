package rag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewSplitter_RejectsInvalid(t *testing.T) {
	cases := []struct {
		size, overlap int
	}{
		{0, 0},
		{-5, 0},
		{100, -1},
		{100, 100},
		{100, 150},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			_, err := NewSplitter(c.size, c.overlap)
			assert.ErrorIs(t, err, ErrInvalidChunking)
		})
	}
}

func Test_Splitter_EmptyAndShort(t *testing.T) {
	s, err := NewSplitter(1000, 100)
	require.NoError(t, err)

	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split(" \n\t\n"))
	assert.Equal(t, []string{"hello"}, s.Split("hello"))

	exact := strings.Repeat("x", 1000)
	assert.Equal(t, []string{exact}, s.Split(exact))
}

func Test_Splitter_ChunkCountFormula(t *testing.T) {
	cases := []struct {
		length, size, overlap, expected int
	}{
		{length: 10000, size: 1000, overlap: 100, expected: 11},
		{length: 1001, size: 1000, overlap: 100, expected: 2},
		{length: 1900, size: 1000, overlap: 100, expected: 2},
		{length: 1901, size: 1000, overlap: 100, expected: 3},
		{length: 3000, size: 1000, overlap: 0, expected: 3},
		{length: 500, size: 1000, overlap: 100, expected: 1},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			s, err := NewSplitter(c.size, c.overlap)
			require.NoError(t, err)

			chunks := s.Split(strings.Repeat("a", c.length))
			assert.Len(t, chunks, c.expected)
			for _, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch), c.size)
			}
		})
	}
}

func Test_Splitter_hardCut(t *testing.T) {
	var cases = []struct {
		input   string
		size    int
		overlap int
		output  []string
	}{
		{input: "abcdefg", size: 3, overlap: 0, output: []string{"abc", "def", "g"}},
		{input: "abcdefg", size: 3, overlap: 1, output: []string{"abc", "cde", "efg"}},
		{input: "abcdefg", size: 9, overlap: 5, output: []string{"abcdefg"}},
		{input: "", size: 9, overlap: 5, output: nil},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			s, err := NewSplitter(c.size, c.overlap)
			require.NoError(t, err)

			assert.Equal(t, c.output, s.hardCut(c.input))
		})
	}
}

func Test_Splitter_HardCutOverlap(t *testing.T) {
	s, err := NewSplitter(1000, 100)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 10000; i++ {
		sb.WriteByte(byte('a' + i%26))
	}
	text := sb.String()

	chunks := s.Split(text)
	require.Len(t, chunks, 11)

	assert.Equal(t, text[:1000], chunks[0])
	assert.Equal(t, text[9000:], chunks[10])
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1][900:], chunks[i][:100])
	}
}

func Test_Splitter_CountsRunes(t *testing.T) {
	s, err := NewSplitter(1000, 0)
	require.NoError(t, err)

	text := strings.Repeat("ż", 2500)
	chunks := s.Split(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 500, utf8.RuneCountInString(chunks[2]))
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func Test_Splitter_PrefersHeadings(t *testing.T) {
	s, err := NewSplitter(1000, 0)
	require.NoError(t, err)

	a := "\n## A\n" + strings.Repeat("a", 600)
	b := "\n## B\n" + strings.Repeat("b", 600)
	chunks := s.Split("# T" + a + b)

	require.Len(t, chunks, 2)
	assert.Equal(t, "# T"+a, chunks[0])
	assert.Equal(t, b, chunks[1])
}

func Test_Splitter_MergesWithOverlap(t *testing.T) {
	s, err := NewSplitter(20, 5)
	require.NoError(t, err)

	chunks := s.Split(strings.Repeat("abcd ", 10))

	assert.Equal(t, []string{
		"abcd abcd abcd abcd",
		" abcd abcd abcd abcd",
		" abcd abcd abcd abcd",
		" abcd ",
	}, chunks)
}

func Test_Splitter_FallsBackToSmallerSeparators(t *testing.T) {
	s, err := NewSplitter(50, 10)
	require.NoError(t, err)

	para := strings.Repeat("word ", 30)
	text := "## Title\n\n" + para + "\n\n" + para

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 50)
	}
	assert.True(t, strings.HasPrefix(chunks[0], "## Title"))
}
