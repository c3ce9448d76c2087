package errors

import (
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal output: message, optional
// suggestion, and the error code for reference.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ce, ok := err.(*CoreError)
	if !ok {
		ce = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ce.Message))

	if ce.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("Hint:  %s\n", ce.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("[%s]", ce.Code))
	return sb.String()
}
