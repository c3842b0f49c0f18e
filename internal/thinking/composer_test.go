package thinking_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/thinking"
)

func testPrompts() *thinking.PromptSet {
	return &thinking.PromptSet{
		Base: "BASE",
		Addenda: map[chat.Mode]string{
			chat.ModeFirstPrinciples: "FP",
			chat.ModeStrategy:        "STRATEGY",
			chat.ModeLife:            "LIFE",
		},
	}
}

func history(n int) []chat.Message {
	out := make([]chat.Message, n)
	for i := range out {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		out[i] = chat.Message{Role: role, Content: fmt.Sprintf("m%d", i)}
	}
	return out
}

func TestCompose_ModeResolution(t *testing.T) {
	c := thinking.NewComposer(nil, testPrompts())

	tests := []struct {
		name       string
		message    string
		selector   chat.Mode
		wantMode   chat.Mode
		wantSystem string
	}{
		{"auto detects first principles", "なぜ火星に行くべきなのか", chat.ModeAuto, chat.ModeFirstPrinciples, "BASE\n\nFP"},
		{"standard selector still detects", "なぜ火星に行くべきなのか", chat.ModeStandard, chat.ModeFirstPrinciples, "BASE\n\nFP"},
		{"empty selector detects", "起業したい", "", chat.ModeStrategy, "BASE\n\nSTRATEGY"},
		{"auto without keywords is standard", "こんにちは", chat.ModeAuto, chat.ModeStandard, "BASE"},
		{"explicit mode wins over keywords", "なぜ火星に行くべきなのか", chat.ModeLife, chat.ModeLife, "BASE\n\nLIFE"},
		{"unknown mode uses base only", "なぜ", chat.Mode("poetry"), chat.Mode("poetry"), "BASE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compose(tt.message, tt.selector, nil)
			assert.Equal(t, tt.wantMode, got.Mode)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, chat.RoleSystem, got.Messages[0].Role)
			assert.Equal(t, tt.wantSystem, got.Messages[0].Content)
		})
	}
}

func TestCompose_Shape(t *testing.T) {
	c := thinking.NewComposer(nil, testPrompts())

	for _, n := range []int{0, 1, 9, 10, 11, 25} {
		t.Run(fmt.Sprintf("history_%d", n), func(t *testing.T) {
			got := c.Compose("question", chat.ModeAuto, history(n))

			first, last := got.Messages[0], got.Messages[len(got.Messages)-1]
			assert.Equal(t, chat.RoleSystem, first.Role)
			assert.Equal(t, chat.RoleUser, last.Role)
			assert.Equal(t, "question", last.Content)
			assert.LessOrEqual(t, len(got.Messages)-2, 10)
			assert.Equal(t, min(n, 10), len(got.Messages)-2)
		})
	}
}

func TestCompose_KeepsLastTenInOrder(t *testing.T) {
	c := thinking.NewComposer(nil, testPrompts())
	h := history(15)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h[14].Timestamp = &ts

	got := c.Compose("q", chat.ModeStandard, h)

	want := make([]chat.Message, 0, 10)
	for _, m := range h[5:] {
		want = append(want, chat.Message{Role: m.Role, Content: m.Content})
	}
	if diff := cmp.Diff(want, got.Messages[1:11]); diff != "" {
		t.Errorf("history window mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, h, 15, "caller history is not modified")
}

func TestCompose_EmbeddedPersona(t *testing.T) {
	c := thinking.NewComposer(nil, nil)
	prompts := thinking.DefaultPrompts()

	got := c.Compose("なぜ火星に行くべきなのか", chat.ModeAuto, nil)
	system := got.Messages[0].Content

	assert.True(t, strings.HasPrefix(system, prompts.Base), "base persona comes first")
	assert.True(t, strings.HasSuffix(system, prompts.Addenda[chat.ModeFirstPrinciples]), "addendum is appended")
	assert.Contains(t, system, "第一原理思考モードを適用")
}

func TestComposer_SetPrompts(t *testing.T) {
	c := thinking.NewComposer(nil, testPrompts())
	c.SetPrompts(&thinking.PromptSet{Base: "NEW"})

	got := c.Compose("なぜ", chat.ModeAuto, nil)
	assert.Equal(t, "NEW", got.Messages[0].Content, "mode without addendum text falls back to base")
}

// =============================================================================
// PROMPT FILES
// =============================================================================

func TestSections(t *testing.T) {
	assert.Equal(t, []string{"base", "first_principles", "life", "strategy"}, thinking.Sections())
}

func TestLoadPrompts_Override(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.md"), []byte("  custom base\n"), 0o600))

	set, err := thinking.LoadPrompts(dir)
	require.NoError(t, err)

	assert.Equal(t, "custom base", set.Base)
	assert.Equal(t, thinking.DefaultPrompts().Addenda[chat.ModeStrategy], set.Addenda[chat.ModeStrategy],
		"sections without an override keep the embedded text")
}

func TestLoadPrompts_EmptyBaseRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.md"), []byte("\n"), 0o600))

	_, err := thinking.LoadPrompts(dir)
	assert.Error(t, err)
}
