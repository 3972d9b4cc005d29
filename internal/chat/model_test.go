package chat

import (
	"strings"
	"testing"
)

func TestTitleFromContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"short", "Hello there", "Hello there"},
		{"trimmed", "  padded  ", "padded"},
		{"blank", "   \t ", DefaultTitle},
		{"exactly forty", strings.Repeat("a", 40), strings.Repeat("a", 40)},
		{"truncated", strings.Repeat("a", 41), strings.Repeat("a", 40)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TitleFromContent(tc.content); got != tc.want {
				t.Errorf("TitleFromContent(%q) = %q, want %q", tc.content, got, tc.want)
			}
		})
	}
}

func TestTitleFromContentCountsRunes(t *testing.T) {
	// 50 multibyte runes truncate to 40 runes, not 40 bytes.
	content := strings.Repeat("é", 50)
	got := TitleFromContent(content)
	if n := len([]rune(got)); n != 40 {
		t.Errorf("expected 40 runes, got %d", n)
	}
	if !strings.HasPrefix(content, got) {
		t.Errorf("truncation corrupted the text: %q", got)
	}
}

func TestHasUserMessage(t *testing.T) {
	sess := NewSession()
	if sess.HasUserMessage() {
		t.Errorf("empty session has no user message")
	}

	sess.Append(NewMessage(RoleSystem, "welcome"))
	if sess.HasUserMessage() {
		t.Errorf("system messages do not count")
	}

	sess.Append(NewMessage(RoleUser, "hi"))
	if !sess.HasUserMessage() {
		t.Errorf("expected a user message")
	}
}

func TestAppendBumpsUpdatedAt(t *testing.T) {
	sess := NewSession()
	before := sess.UpdatedAt

	sess.Append(NewMessage(RoleUser, "hi"))
	if sess.UpdatedAt.Before(before) {
		t.Errorf("UpdatedAt moved backwards")
	}
	if len(sess.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(sess.Messages))
	}
}
