package memory

import "strings"

const maxChunkChars = 2000

// Chunk is one indexable unit of a source document before persistence.
type Chunk struct {
	Heading string
	Content string
}

// SplitIntoChunks splits content by level-2 headings, with a preamble
// chunk for anything before the first one, and subdivides any chunk over
// maxChunkChars on blank-line boundaries without breaking a paragraph
// (spec.md §4.5 Chunking).
func SplitIntoChunks(title, content string) []Chunk {
	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var heading string
	var body []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text == "" {
			body = nil
			return
		}
		chunks = append(chunks, subdivide(heading, text)...)
		body = nil
	}

	preambleLabel := title
	if preambleLabel == "" {
		preambleLabel = "Preamble"
	}
	heading = preambleLabel

	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			flush()
			heading = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		body = append(body, line)
	}
	flush()

	return chunks
}

// subdivide splits a single heading's body into ≤maxChunkChars pieces on
// blank-line boundaries, never splitting inside a paragraph.
func subdivide(heading, text string) []Chunk {
	if len(text) <= maxChunkChars {
		return []Chunk{{Heading: heading, Content: text}}
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []Chunk
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Heading: heading, Content: strings.TrimSpace(current.String())})
		current.Reset()
	}

	for _, p := range paragraphs {
		if current.Len() > 0 && current.Len()+len(p)+2 > maxChunkChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	if len(chunks) == 0 {
		return []Chunk{{Heading: heading, Content: text}}
	}
	return chunks
}
