package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dante4567/rag-provider-sub004/internal/store"
)

var (
	emailHeaderPattern = regexp.MustCompile(`(?m)^(From|To|Subject|Date):\s`)
	chatTurnPattern    = regexp.MustCompile(`(?m)^[A-Za-z][\w .'-]{0,39}:\s`)
)

// DetectDocType classifies a document by extension first, content
// second. Unknown shapes land on generic, never on an error.
func DetectDocType(filename, content string) store.DocType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return store.DocTypeMarkdown
	case ".eml":
		return store.DocTypeEmail
	case ".pdf":
		return store.DocTypePDF
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return store.DocTypeImage
	}

	// Emails carry header blocks; chats are runs of "Name: ..." turns.
	if len(emailHeaderPattern.FindAllString(content, 3)) >= 2 {
		return store.DocTypeEmail
	}
	if len(chatTurnPattern.FindAllString(content, 3)) >= 3 {
		return store.DocTypeChat
	}
	if strings.HasPrefix(strings.TrimSpace(content), "#") {
		return store.DocTypeMarkdown
	}
	return store.DocTypeGeneric
}
