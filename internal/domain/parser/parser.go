// Package parser extracts structured signals from raw model output.
//
// The generating model is instructed to emit convention markers
// ([OFF_TOPIC], [СЕНІМСІЗ], [SUGGESTIONS] with 💡 bullets), but markers are a
// convention, not a contract: the parser must degrade gracefully when the
// model omits or misspells them, so off-topic gating and follow-up
// suggestions never silently disappear.
package parser

import (
	"regexp"
	"strings"

	"github.com/erkebulan/ustazai/internal/domain/entities"
)

// Marker tokens the model is instructed to emit.
const (
	OffTopicMarker    = "[OFF_TOPIC]"
	UncertainMarker   = "[СЕНІМСІЗ]"
	SuggestionsMarker = "[SUGGESTIONS]"
	SuggestionBullet  = "💡"
)

// MaxSuggestions caps the follow-up list; extras are dropped, not an error.
const MaxSuggestions = 3

// suggestionsMarkerRe matches misspelled section markers where the model
// wrote the leading letter as Latin C or the visually identical Cyrillic С,
// in any case. Matches are rewritten to the canonical token before splitting.
var suggestionsMarkerRe = regexp.MustCompile(`\[[СC][Uu][Gg][Gg][Ee][Ss][Tt][Ii][Oo][Nn][Ss]\]`)

// Parse converts one raw completion into a ParsedResponse.
//
// Marker booleans are recorded by substring presence before any stripping.
// If the canonical suggestions marker is present, text after its first
// occurrence is parsed line-by-line for bullet lines. Otherwise a defensive
// fallback collects consecutive trailing bullet lines. All markers are
// stripped from the final answer text.
func Parse(raw string) entities.ParsedResponse {
	resp := entities.ParsedResponse{
		OffTopic:  strings.Contains(raw, OffTopicMarker),
		Uncertain: strings.Contains(raw, UncertainMarker),
	}

	normalized := suggestionsMarkerRe.ReplaceAllString(raw, SuggestionsMarker)

	var answer string
	if idx := strings.Index(normalized, SuggestionsMarker); idx >= 0 {
		answer = strings.TrimSpace(normalized[:idx])
		block := normalized[idx+len(SuggestionsMarker):]
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, SuggestionBullet) {
				continue
			}
			if s := strings.TrimSpace(strings.TrimPrefix(line, SuggestionBullet)); s != "" {
				resp.Suggestions = append(resp.Suggestions, s)
			}
		}
	} else {
		answer = normalized
		lines := strings.Split(normalized, "\n")

		// Walk backward collecting trailing bullet lines; stop at the first
		// non-blank line that is not a bullet.
		var tail []string
		for i := len(lines) - 1; i >= 0; i-- {
			stripped := strings.TrimSpace(lines[i])
			if strings.HasPrefix(stripped, SuggestionBullet) {
				if s := strings.TrimSpace(strings.TrimPrefix(stripped, SuggestionBullet)); s != "" {
					tail = append(tail, s)
				}
				continue
			}
			if stripped != "" && len(tail) > 0 {
				break
			}
		}
		if len(tail) > 0 {
			// Restore original order.
			for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
				tail[i], tail[j] = tail[j], tail[i]
			}
			resp.Suggestions = tail
			resp.FromFallback = true

			kept := lines[:0]
			for _, line := range lines {
				if !strings.HasPrefix(strings.TrimSpace(line), SuggestionBullet) {
					kept = append(kept, line)
				}
			}
			answer = strings.Join(kept, "\n")
		}
	}

	answer = strings.ReplaceAll(answer, OffTopicMarker, "")
	answer = strings.ReplaceAll(answer, UncertainMarker, "")
	answer = strings.ReplaceAll(answer, SuggestionsMarker, "")
	answer = suggestionsMarkerRe.ReplaceAllString(answer, "")
	resp.Answer = strings.TrimSpace(answer)

	if len(resp.Suggestions) > MaxSuggestions {
		resp.Suggestions = resp.Suggestions[:MaxSuggestions]
	}
	return resp
}
