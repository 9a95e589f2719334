package shape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulletCount(t *testing.T) {
	tests := []struct {
		prompt string
		want   int
	}{
		{"give me 3 bullets on the migration", 3},
		{"5 points about LuminOS", 5},
		{"1 bullet please", 1},
		{"summarize in 25 bullets", MaxBullets},
		{"what does Leo do?", 0},
		{"0 bullets", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BulletCount(tt.prompt), "prompt: %q", tt.prompt)
	}
}

func TestFormatBulletsExactCount(t *testing.T) {
	inputs := []string{
		"- one thing\n- another thing\n- a third thing here",
		"He led a migration. He built LuminOS. He secured the network.",
		"A single sentence without much in it.",
		"1. first item\n2. second item",
		"short",
	}
	for _, input := range inputs {
		for k := 1; k <= MaxBullets; k++ {
			out := FormatBullets(input, k)
			lines := strings.Split(out, "\n")
			require.Len(t, lines, k, "input %q, k=%d", input, k)
			for _, line := range lines {
				assert.True(t, strings.HasPrefix(line, "- "), "line %q lacks marker", line)
				assert.LessOrEqual(t, len([]rune(strings.TrimPrefix(line, "- "))), 160)
			}
		}
	}
}

func TestFormatBulletsRepairsSplitThought(t *testing.T) {
	out := FormatBullets("He led a migration:\nhe moved fast", 1)
	assert.Equal(t, "- He led a migration: he moved fast", out)
}

func TestFormatBulletsMergesDanglingConnector(t *testing.T) {
	out := FormatBullets("- Rebuilt identity and\n- device management from scratch\n- Shipped the new network", 2)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "- Rebuilt identity and device management from scratch", lines[0])
}

func TestFormatBulletsExpandsSeparators(t *testing.T) {
	out := FormatBullets("He rebuilt identity; he replaced the phones; he deployed new laptops everywhere", 3)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "- He rebuilt identity", lines[0])
	assert.Equal(t, "- he replaced the phones", lines[1])
}

func TestFormatBulletsPadsFromFallbackPool(t *testing.T) {
	out := FormatBullets("He led the migration effort at GLAAD.", 4)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	// Padding comes from the pool, no duplicates.
	seen := map[string]bool{}
	for _, line := range lines {
		assert.False(t, seen[strings.ToLower(line)], "duplicate line %q", line)
		seen[strings.ToLower(line)] = true
	}
}

func TestFormatBulletsClipsLongItems(t *testing.T) {
	long := strings.Repeat("infrastructure ", 30)
	out := FormatBullets("- "+long, 1)
	item := strings.TrimPrefix(out, "- ")
	assert.LessOrEqual(t, len([]rune(item)), 160)
	assert.True(t, strings.HasSuffix(item, "..."))
}

func TestFinalizeProse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already closed", "He leads IT at GLAAD.", "He leads IT at GLAAD."},
		{"trailing comma", "He leads IT at GLAAD,", "He leads IT at GLAAD."},
		{"trailing colon", "Key strengths:", "Key strengths."},
		{"truncates to last sentence", "He leads IT. He also builds", "He leads IT."},
		{"appends period", "He leads IT at GLAAD", "He leads IT at GLAAD."},
		{"collapses stutter", "He leads IT at GLAAD..", "He leads IT at GLAAD."},
		{"strips dangling dash", "He leads IT at GLAAD. More -", "He leads IT at GLAAD."},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalizeProse(tt.in))
		})
	}
}

func TestProseClosure(t *testing.T) {
	inputs := []string{
		"He leads IT at GLAAD and",
		"Strengths include security, identity,",
		"A fragment with no punctuation at all",
		"Done. Unfinished trailer without end",
		"Multi. Sentence. Output.",
	}
	for _, in := range inputs {
		out := FinalizeProse(in)
		if out == "" {
			continue
		}
		last := out[len(out)-1]
		assert.Contains(t, ".!?", string(last), "input %q produced %q", in, out)
	}
}

func TestAdequate(t *testing.T) {
	good := "He led a 72-hour migration to a cloud-native stack. He also built the LuminOS ecosystem spanning five applications."
	assert.True(t, Adequate(good, false))

	assert.False(t, Adequate("He led a migration.", false), "single sentence is inadequate")
	assert.False(t, Adequate("Yes he did. Very good he is.", false), "stub segments are inadequate")
	assert.False(t, Adequate(good+" And then he went on to", false), "dangling ending is inadequate")

	// Explicit short-answer requests are exempt.
	assert.True(t, Adequate("He led a migration.", true))
}

func TestShortAnswerRequested(t *testing.T) {
	assert.True(t, ShortAnswerRequested("give me a short answer about Leo"))
	assert.True(t, ShortAnswerRequested("briefly, what is LuminOS?"))
	assert.True(t, ShortAnswerRequested("in one sentence, why hire him?"))
	assert.False(t, ShortAnswerRequested("tell me about the migration"))
}

func TestClampBound(t *testing.T) {
	inputs := []string{
		strings.Repeat("word ", 200),
		strings.Repeat("Sentence one here. ", 50),
		"short",
		strings.Repeat("x", 501),
		strings.Repeat("clause, ", 100),
	}
	for _, in := range inputs {
		out := Clamp(in, 500)
		assert.LessOrEqual(t, len([]rune(out)), 500, "input length %d", len(in))
	}
}

func TestClampPrefersSentenceBoundary(t *testing.T) {
	// Over the limit with a sentence boundary past the 60% mark.
	text := strings.Repeat("a", 350) + ". " + strings.Repeat("b", 300)
	out := Clamp(text, 500)
	assert.Equal(t, strings.Repeat("a", 350)+".", out)
}

func TestClampHardTruncateAddsEllipsis(t *testing.T) {
	out := Clamp(strings.Repeat("x", 600), 500)
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.LessOrEqual(t, len([]rune(out)), 500)
}

func TestFallbackPoolFillsMaxBullets(t *testing.T) {
	require.GreaterOrEqual(t, len(FallbackBullets), MaxBullets)
}
