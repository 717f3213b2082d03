package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"realty-agent/internal/domain"
)

func TestContextFromTurns(t *testing.T) {
	turns := []domain.Turn{
		{Inbound: "Hi, I'm Jane", Outbound: "Hello Jane!"},
		{Inbound: "   "},
		{Inbound: "Tuesday works"},
	}
	require.Equal(t, "Hi, I'm Jane\nTuesday works", contextFromTurns(turns))
	require.Equal(t, "", contextFromTurns(nil))
}

func TestBuildSystemInstruction_ReplyContract(t *testing.T) {
	got := buildSystemInstruction("persona text", "Sherri", 2026, "")
	require.Contains(t, got, `"user_text": "your response to user here"`)
	require.Contains(t, got, `"type": "showing|consultation|cancellation"`)
	require.Contains(t, got, "NEVER say \"confirmed\" or \"booked\"")
	require.Contains(t, got, "Let me check Sherri's availability")
	require.Contains(t, got, "Recent context: ")
}

func TestBuildSystemInstruction_TargetYearIsConfig(t *testing.T) {
	got := buildSystemInstruction("persona", "Alex", 2031, "ctx")
	require.Contains(t, got, "THE YEAR IS ALWAYS 2031")
	require.Contains(t, got, `"2031-01-14"`)
	require.NotContains(t, got, "2026")
}
