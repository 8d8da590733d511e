// Package feedback extracts structured feedback from raw channel messages.
package feedback

import "regexp"

// feedbackPattern is the fixed extraction pattern: a bolded discordID label
// followed by a backtick-quoted identifier, then a bolded Query label with a
// backtick-quoted query. Both fields must match or the message is not
// feedback.
var feedbackPattern = regexp.MustCompile("\\*\\*discordID:\\*\\*\\s*`([^`]+)`\\s*\\*\\*Query:\\*\\*\\s*`([^`]+)`")

// ParsedFeedback is the result of a successful pattern match.
type ParsedFeedback struct {
	// RequesterID is the human-facing identifier used to correlate the
	// message to a ticket.
	RequesterID string
	// Query is the requester's question text.
	Query string
}

// Parse applies the feedback pattern to raw message text. The second return
// value reports whether the pattern matched in full; a miss is not an
// error, the message is simply not feedback.
func Parse(raw string) (ParsedFeedback, bool) {
	match := feedbackPattern.FindStringSubmatch(raw)
	if match == nil {
		return ParsedFeedback{}, false
	}
	return ParsedFeedback{RequesterID: match[1], Query: match[2]}, true
}
