package usecase

import (
	"encoding/json"
	"log/slog"
	"strings"

	"realty-agent/internal/domain"
)

// fallbackReply is sent whenever the model output cannot be parsed.
const fallbackReply = "I'm having trouble processing that right now. Please try again."

// modelReply is the JSON contract the model is instructed to follow.
// appointmentinfo may be null or absent when the user is just chatting.
type modelReply struct {
	UserText        string                    `json:"user_text"`
	AppointmentInfo *domain.AppointmentIntent `json:"appointmentinfo"`
}

// ParsedReply is the parser's result: the conversational reply to send and,
// when the model extracted a complete appointment request, the intent.
type ParsedReply struct {
	Text   string
	Intent *domain.AppointmentIntent
}

// ParseModelReply turns raw model output into a ParsedReply. Model output is
// untrusted: malformed JSON or a missing user_text yields the fixed fallback
// reply with no intent, and an appointmentinfo object missing any of its four
// fields is discarded whole. Never fails past this boundary.
func ParseModelReply(log *slog.Logger, raw string) ParsedReply {
	text := stripFence(strings.TrimSpace(raw))

	var reply modelReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		log.Error("failed to parse model reply", "err", err, "raw", raw)
		return ParsedReply{Text: fallbackReply}
	}
	if strings.TrimSpace(reply.UserText) == "" {
		log.Error("model reply missing user_text", "raw", raw)
		return ParsedReply{Text: fallbackReply}
	}

	intent := reply.AppointmentInfo
	if intent != nil && !intent.Complete() {
		log.Info("appointment info incomplete, discarding", "intent", *intent)
		intent = nil
	}

	return ParsedReply{Text: reply.UserText, Intent: intent}
}

// stripFence removes a markdown code-block wrapper, including an optional
// language tag after the opening fence.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	text = strings.Join(lines[1:len(lines)-1], "\n")
	if strings.HasPrefix(text, "json") {
		text = strings.TrimSpace(text[4:])
	}
	return text
}
