package telegram

import "testing"

func TestParseChatID(t *testing.T) {
	if got := parseChatID("123456"); got != 123456 {
		t.Fatalf("expected 123456, got %d", got)
	}
}

func TestParseChatIDNegative(t *testing.T) {
	if got := parseChatID("-100123456"); got != -100123456 {
		t.Fatalf("expected -100123456, got %d", got)
	}
}
