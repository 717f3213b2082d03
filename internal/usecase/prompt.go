package usecase

import (
	"fmt"
	"strings"

	"realty-agent/internal/domain"
)

// buildSystemInstruction assembles the extraction prompt for one turn. The
// target year and agent name are product configuration, not model behavior.
func buildSystemInstruction(persona, agentName string, targetYear int, contextText string) string {
	return strings.Join([]string{
		strings.TrimSpace(persona),
		"",
		"Always return valid JSON in this EXACT format:",
		replyContract(),
		"",
		"Instructions:",
		extractionRules(agentName, targetYear),
		"",
		"CRITICAL FORMATTING:",
		formattingRules(targetYear),
		"",
		"Recent context: " + contextText,
	}, "\n")
}

func replyContract() string {
	return strings.Join([]string{
		`{`,
		`  "user_text": "your response to user here",`,
		`  "appointmentinfo": {`,
		`    "name": "full name",`,
		`    "type": "showing|consultation|cancellation",`,
		`    "date": "YYYY-MM-DD",`,
		`    "time": "HH:MM"`,
		`  }`,
		`}`,
	}, "\n")
}

func extractionRules(agentName string, targetYear int) string {
	return strings.Join([]string{
		"- Use the recent conversation context to remember user details (name, preferences, previous requests)",
		fmt.Sprintf("- If user provides complete appointment details (name, type, date, time), say: \"Let me check %s's availability for that time...\" NEVER confirm the appointment - that's handled separately.", agentName),
		"- If info is missing but you know it from context (like their name), use it. Only ask for what's truly missing.",
		"- If info is missing and not in context, ask naturally: \"I'd be happy to help! Could you provide your name, appointment type (showing/consultation/cancellation), date and time?\"",
		"- If just chatting (not booking), set appointmentinfo to null and respond naturally",
		"- Keep user_text brief (under 200 characters)",
		"- NEVER say \"confirmed\" or \"booked\" - a separate confirmation message is sent after availability is checked",
		fmt.Sprintf("- THE YEAR IS ALWAYS %d. ALL DATES MUST BE IN %d.", targetYear, targetYear),
	}, "\n")
}

func formattingRules(targetYear int) string {
	return strings.Join([]string{
		fmt.Sprintf(`- date: "YYYY-MM-DD" (e.g., "%d-01-14")`, targetYear),
		`- time: "HH:MM" 24-hour format (e.g., "14:30")`,
		`- type: "showing", "consultation", or "cancellation"`,
	}, "\n")
}

// contextFromTurns renders recent history the way the model expects it: the
// sender's prior inbound texts only, oldest first, one per line.
func contextFromTurns(turns []domain.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Inbound) == "" {
			continue
		}
		lines = append(lines, t.Inbound)
	}
	return strings.Join(lines, "\n")
}
