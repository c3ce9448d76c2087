package chunk

import (
	"regexp"
	"strings"

	"github.com/dante4567/rag-provider-sub004/internal/store"
)

var (
	headingPattern  = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	fencePattern    = regexp.MustCompile("^(```|~~~)")
	tableRowPattern = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	listItemPattern = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
)

// sectionState tracks the heading stack while walking the document.
type sectionState struct {
	stack [6]string
	level int
}

// enter records a heading at the given level, clearing deeper levels.
func (s *sectionState) enter(level int, title string) {
	s.stack[level-1] = title
	for i := level; i < 6; i++ {
		s.stack[i] = ""
	}
	s.level = level
}

// path returns the ordered section path from root to the current heading.
func (s *sectionState) path() []string {
	var path []string
	for i := 0; i < s.level; i++ {
		if s.stack[i] != "" {
			path = append(path, s.stack[i])
		}
	}
	return path
}

// title returns the nearest enclosing heading.
func (s *sectionState) title() string {
	if s.level == 0 {
		return ""
	}
	return s.stack[s.level-1]
}

// block is a structural segment before token-bound packing.
type block struct {
	lines     []string
	kind      store.ChunkType
	leadsList bool // paragraph immediately followed by a list
}

// markdownPieces segments markdown into chunks honoring the boundary
// priority: headings start sections, code and tables stay atomic, lists
// keep their lead-in, prose packs to the target with a hard cap.
func (c *Chunker) markdownPieces(content string) []piece {
	lines := strings.Split(content, "\n")
	var pieces []piece
	state := &sectionState{}

	// pendingHeading carries a heading line into the next emitted chunk.
	var pendingHeading string

	emit := func(text string, kind store.ChunkType) {
		text = strings.TrimRight(text, "\n")
		if strings.TrimSpace(text) == "" {
			return
		}
		if pendingHeading != "" {
			text = pendingHeading + "\n\n" + text
			pendingHeading = ""
		}
		pieces = append(pieces, piece{
			text:           text,
			chunkType:      kind,
			sectionTitle:   state.title(),
			parentSections: state.path(),
		})
	}

	blocks := parseBlocks(lines)
	for i, b := range blocks {
		switch b.kind {
		case store.ChunkTypeHeading:
			// Flush a heading that never got content.
			if pendingHeading != "" {
				pieces = append(pieces, piece{
					text:           pendingHeading,
					chunkType:      store.ChunkTypeHeading,
					sectionTitle:   state.title(),
					parentSections: state.path(),
				})
				pendingHeading = ""
			}
			m := headingPattern.FindStringSubmatch(b.lines[0])
			state.enter(len(m[1]), m[2])
			pendingHeading = b.lines[0]

		case store.ChunkTypeCode, store.ChunkTypeTable:
			// Atomic regardless of size.
			emit(strings.Join(b.lines, "\n"), b.kind)

		case store.ChunkTypeList:
			text := strings.Join(b.lines, "\n")
			if i > 0 && blocks[i-1].leadsList && len(pieces) > 0 &&
				pieces[len(pieces)-1].chunkType == store.ChunkTypeParagraph {
				// Re-attach the lead-in paragraph unless the merge blows
				// the cap.
				prev := pieces[len(pieces)-1]
				merged := prev.text + "\n\n" + text
				if EstimateTokens(merged) <= c.maxTokens {
					prev.text = merged
					prev.chunkType = store.ChunkTypeList
					pieces[len(pieces)-1] = prev
					continue
				}
			}
			for _, part := range c.splitToCap(text, splitListItems) {
				emit(part, store.ChunkTypeList)
			}

		default:
			text := strings.Join(b.lines, "\n")
			for _, part := range c.packProse(text) {
				emit(part, store.ChunkTypeParagraph)
			}
		}
	}

	if pendingHeading != "" {
		pieces = append(pieces, piece{
			text:           pendingHeading,
			chunkType:      store.ChunkTypeHeading,
			sectionTitle:   state.title(),
			parentSections: state.path(),
		})
	}
	return pieces
}

// parseBlocks walks lines into structural blocks.
func parseBlocks(lines []string) []block {
	var blocks []block
	var current []string

	flushProse := func() {
		if len(current) > 0 {
			blocks = append(blocks, block{lines: current, kind: store.ChunkTypeParagraph})
			current = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch {
		case headingPattern.MatchString(line):
			flushProse()
			blocks = append(blocks, block{lines: []string{line}, kind: store.ChunkTypeHeading})

		case fencePattern.MatchString(strings.TrimSpace(line)):
			flushProse()
			fence := fencePattern.FindString(strings.TrimSpace(line))
			code := []string{line}
			for i++; i < len(lines); i++ {
				code = append(code, lines[i])
				if strings.HasPrefix(strings.TrimSpace(lines[i]), fence) {
					break
				}
			}
			blocks = append(blocks, block{lines: code, kind: store.ChunkTypeCode})

		case tableRowPattern.MatchString(line):
			flushProse()
			table := []string{line}
			for i+1 < len(lines) && tableRowPattern.MatchString(lines[i+1]) {
				i++
				table = append(table, lines[i])
			}
			blocks = append(blocks, block{lines: table, kind: store.ChunkTypeTable})

		case listItemPattern.MatchString(line):
			flushProse()
			// A paragraph directly above is the list's lead-in.
			if n := len(blocks); n > 0 && blocks[n-1].kind == store.ChunkTypeParagraph {
				blocks[n-1].leadsList = true
			}
			list := []string{line}
			for i+1 < len(lines) &&
				(listItemPattern.MatchString(lines[i+1]) ||
					isListContinuation(lines[i+1])) {
				i++
				list = append(list, lines[i])
			}
			blocks = append(blocks, block{lines: list, kind: store.ChunkTypeList})

		case strings.TrimSpace(line) == "":
			flushProse()

		default:
			current = append(current, line)
		}
	}
	flushProse()
	return blocks
}

// isListContinuation matches indented continuation lines inside a list
// item.
func isListContinuation(line string) bool {
	return strings.TrimSpace(line) != "" &&
		(strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t"))
}

// packProse groups paragraphs toward the target token count with the max
// as a hard cap. A single oversized paragraph is split on sentence
// boundaries.
func (c *Chunker) packProse(text string) []string {
	paragraphs := strings.Split(text, "\n\n")

	var out []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
			currentTokens = 0
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraTokens := EstimateTokens(para)

		if paraTokens > c.maxTokens {
			flush()
			out = append(out, c.splitToCap(para, splitSentences)...)
			continue
		}
		if currentTokens > 0 && currentTokens+paraTokens > c.targetTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}
	flush()
	return out
}

// splitToCap splits text into units and repacks them under the max token
// cap.
func (c *Chunker) splitToCap(text string, split func(string) []string) []string {
	if EstimateTokens(text) <= c.maxTokens {
		return []string{text}
	}

	units := split(text)
	var out []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
			currentTokens = 0
		}
	}

	for _, unit := range units {
		unitTokens := EstimateTokens(unit)
		if unitTokens > c.maxTokens {
			// A single unit over the cap (one run-on sentence, one giant
			// list item) is windowed on word boundaries.
			flush()
			out = append(out, windowWords(unit, c.maxTokens)...)
			continue
		}
		if currentTokens > 0 && currentTokens+unitTokens > c.maxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(joinSep(unit))
		}
		current.WriteString(unit)
		currentTokens += unitTokens
	}
	flush()
	return out
}

// windowWords hard-splits text into word-boundary windows whose token
// estimate stays under the cap. Last resort for text with no usable
// sentence or item boundaries.
func windowWords(text string, maxTokens int) []string {
	words := strings.Fields(text)
	perWindow := int(float64(maxTokens) / tokensPerWord)
	if perWindow < 1 {
		perWindow = 1
	}
	var out []string
	for start := 0; start < len(words); start += perWindow {
		end := start + perWindow
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

// joinSep picks the separator for repacked units: list items rejoin with
// newlines, sentences with a space.
func joinSep(unit string) string {
	if listItemPattern.MatchString(unit) {
		return "\n"
	}
	return " "
}

// splitSentences splits prose on sentence-ending punctuation.
var sentenceEndPattern = regexp.MustCompile(`([.!?])\s+`)

func splitSentences(text string) []string {
	marked := sentenceEndPattern.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitListItems splits a list block into items, keeping continuation
// lines with their item.
func splitListItems(text string) []string {
	lines := strings.Split(text, "\n")
	var items []string
	var current []string
	for _, line := range lines {
		if listItemPattern.MatchString(line) && len(current) > 0 {
			items = append(items, strings.Join(current, "\n"))
			current = nil
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		items = append(items, strings.Join(current, "\n"))
	}
	return items
}
