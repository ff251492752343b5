package userprofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/config"
)

func TestResolveMatchesByChannelIdentity(t *testing.T) {
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "PROFILE.md")
	if err := os.WriteFile(profilePath, []byte("likes tea"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Users: []config.UserConfig{
		{
			ID:          "wt",
			DisplayName: "WT",
			ProfileDoc:  profilePath,
			Identities:  []config.UserIdentity{{Channel: "telegram", ChannelUserID: "123"}},
		},
	}}

	r := NewResolver(cfg)
	p := r.Resolve(&bus.UserBinding{ChannelUserID: "123"})
	if p == nil || p.UserID != "wt" || p.Doc != "likes tea" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestResolveUnconfiguredUserFallsBackToBinding(t *testing.T) {
	cfg := &config.Config{}
	r := NewResolver(cfg)
	p := r.Resolve(&bus.UserBinding{UserID: "ghost", DisplayName: "Ghost"})
	if p == nil || p.UserID != "ghost" || p.Doc != "" {
		t.Fatalf("unexpected fallback profile: %+v", p)
	}
}

func TestResolveNilBinding(t *testing.T) {
	r := NewResolver(&config.Config{})
	if r.Resolve(nil) != nil {
		t.Fatal("expected nil profile for nil binding")
	}
}
