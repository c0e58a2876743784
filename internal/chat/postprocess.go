package chat

import (
	"regexp"
	"strings"
)

const (
	emptyReplyMessage = "I'm having trouble processing your request right now. " +
		"Please try again or contact your veterinarian directly if this is urgent."
	strippedReplyMessage = "Thank you for sharing this information about your pet. " +
		"I recommend monitoring your pet closely and contacting your veterinarian if symptoms persist or worsen. " +
		"Would you like to share any additional details about your pet's condition?"
)

var reasoningBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Clean removes reasoning blocks and substitutes safe defaults for empty output.
func Clean(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return emptyReplyMessage
	}
	cleaned := strings.TrimSpace(reasoningBlock.ReplaceAllString(raw, ""))
	if cleaned == "" {
		return strippedReplyMessage
	}
	return cleaned
}

// Split breaks a reply on SplitDelimiter. Without the delimiter the reply is a single part.
func Split(reply string) []string {
	if !strings.Contains(reply, SplitDelimiter) {
		return []string{reply}
	}
	var parts []string
	for _, p := range strings.Split(reply, SplitDelimiter) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{strippedReplyMessage}
	}
	return parts
}
