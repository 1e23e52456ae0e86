package rag

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/gamma-omg/brain-rag/docstore"
	"github.com/gamma-omg/brain-rag/llm"
)

// NoContextMarker replaces the context block when retrieval finds nothing.
const NoContextMarker = "No relevant notes were found in the knowledge base."

const DefaultMaxContextChars = 8000

const systemPrompt = `You are a second-brain assistant. Answer the user's question using ONLY the CONTEXT below.
If the answer is not in the context, say plainly that you don't know. Do not make up facts.
Cite the documents you used by name.

CONTEXT:
%s`

// BuildContext joins matches into "--- DOCUMENT: name ---" blocks separated
// by blank lines, keeping at most maxChars runes. Blocks that do not fit are
// dropped; only a lone first block is truncated. The matches that made it
// into the context are returned alongside it.
func BuildContext(matches []docstore.Match, maxChars int) (string, []docstore.Match) {
	if len(matches) == 0 {
		return NoContextMarker, nil
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	const sep = "\n\n"
	var sb strings.Builder
	used := 0
	included := 0

	for i, m := range matches {
		block := fmt.Sprintf("--- DOCUMENT: %s ---\n%s", m.Meta.Filename, m.Text)
		n := utf8.RuneCountInString(block)

		if i > 0 {
			if used+len(sep)+n > maxChars {
				break
			}
			sb.WriteString(sep)
			used += len(sep)
		} else if n > maxChars {
			sb.WriteString(string([]rune(block)[:maxChars]))
			included = 1
			break
		}

		sb.WriteString(block)
		used += n
		included++
	}

	return sb.String(), matches[:included]
}

// BuildMessages prepends the system instruction and drops history turns with
// roles other than user and assistant.
func BuildMessages(contextBlock, question string, history []llm.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: fmt.Sprintf(systemPrompt, contextBlock)})

	for _, m := range history {
		if m.Role == llm.RoleUser || m.Role == llm.RoleAssistant {
			msgs = append(msgs, m)
		}
	}

	return append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
}

// Sources returns the distinct filenames of matches, sorted.
func Sources(matches []docstore.Match) []string {
	res := make([]string, 0, len(matches))
	for _, m := range matches {
		if !slices.Contains(res, m.Meta.Filename) {
			res = append(res, m.Meta.Filename)
		}
	}
	slices.Sort(res)
	return res
}

// RenderSources formats sources as a list of wiki links.
func RenderSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n**Sources:**")
	for _, s := range sources {
		sb.WriteString("\n- [[")
		sb.WriteString(s)
		sb.WriteString("]]")
	}
	return sb.String()
}
