package email

import (
	"strings"

	"github.com/brandon/alert-bridge/pkg/types"
)

// IsRelevant reports whether a message should be forwarded: its From
// header must contain sender and its Subject none of the excluded
// markers. Empty markers are ignored.
func IsRelevant(msg *types.ParsedEmail, sender string, excluded []string) bool {
	if msg == nil || !strings.Contains(msg.From, sender) {
		return false
	}

	for _, marker := range excluded {
		if marker != "" && strings.Contains(msg.Subject, marker) {
			return false
		}
	}
	return true
}
