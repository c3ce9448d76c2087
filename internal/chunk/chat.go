package chunk

import (
	"regexp"
	"strings"

	"github.com/dante4567/rag-provider-sub004/internal/store"
)

// speakerPattern matches a chat turn start: a short name followed by a
// colon at line start ("Alice:", "Dr. Weber:", "user_2:").
var speakerPattern = regexp.MustCompile(`^([A-Za-z][\w .'-]{0,39}):\s*(.*)$`)

// chatPieces splits a chat export on speaker turn boundaries; each turn
// is one chunk carrying the speaker label. Preamble before the first
// speaker becomes a plain paragraph chunk.
func (c *Chunker) chatPieces(content string) []piece {
	lines := strings.Split(content, "\n")

	var pieces []piece
	var speaker string
	var turn []string

	flush := func() {
		text := strings.TrimRight(strings.Join(turn, "\n"), "\n")
		turn = nil
		if strings.TrimSpace(text) == "" {
			return
		}
		// An oversized turn still honors the token cap; each part keeps
		// the speaker label.
		for _, part := range c.splitToCap(text, splitSentences) {
			if speaker == "" {
				pieces = append(pieces, piece{text: part, chunkType: store.ChunkTypeParagraph})
				continue
			}
			pieces = append(pieces, piece{
				text:      part,
				chunkType: store.ChunkTypeChatTurn,
				speaker:   speaker,
			})
		}
	}

	for _, line := range lines {
		if m := speakerPattern.FindStringSubmatch(line); m != nil {
			flush()
			speaker = strings.TrimSpace(m[1])
		}
		turn = append(turn, line)
	}
	flush()
	return pieces
}
