// Package userprofile resolves an inbound message's user binding to a
// known user identity and profile document (spec.md §4.8 section 2, §6
// on-disk layout `~/.janus/users/<id>/PROFILE.md`). No teacher file covers
// this directly; it is built against config.UserConfig/UserIdentity, which
// are themselves reconstructed from the teacher's config call shape (see
// internal/config's DESIGN.md entry).
package userprofile

import (
	"os"
	"path/filepath"

	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/config"
)

// Profile is the resolved identity plus profile-document contents used by
// the context builder's "user" section.
type Profile struct {
	UserID      string
	DisplayName string
	Doc         string // contents of the user's PROFILE.md, empty if absent
	Tools       config.AllowDenyConfig
	Skills      config.AllowDenyConfig
	ContentPolicy string
}

// Resolver looks up configured users by channel identity and loads their
// profile document from disk.
type Resolver struct {
	users   []config.UserConfig
	homeDir string
}

func NewResolver(cfg *config.Config) *Resolver {
	home, _ := os.UserHomeDir()
	return &Resolver{users: cfg.Users, homeDir: home}
}

// Resolve returns the first configured user that has an identity with the
// binding's channel-user-id or channel-username, or whose ID equals the
// binding's UserID. The identity's channel is not compared, and a
// channel-user-id match does not take precedence over a username match.
func (r *Resolver) Resolve(binding *bus.UserBinding) *Profile {
	if binding == nil {
		return nil
	}

	for _, u := range r.users {
		if matchesIdentity(u, binding) || u.ID == binding.UserID {
			return r.load(u)
		}
	}

	// Unconfigured user: still surface the binding's own identity.
	return &Profile{UserID: binding.UserID, DisplayName: binding.DisplayName}
}

func matchesIdentity(u config.UserConfig, binding *bus.UserBinding) bool {
	for _, id := range u.Identities {
		if id.ChannelUserID != "" && id.ChannelUserID == binding.ChannelUserID {
			return true
		}
		if id.ChannelUsername != "" && id.ChannelUsername == binding.ChannelUsername {
			return true
		}
	}
	return false
}

func (r *Resolver) load(u config.UserConfig) *Profile {
	p := &Profile{
		UserID:        u.ID,
		DisplayName:   u.DisplayName,
		Tools:         u.Tools,
		Skills:        u.Skills,
		ContentPolicy: u.ContentPolicy,
	}

	path := u.ProfileDoc
	if path == "" && r.homeDir != "" {
		path = filepath.Join(r.homeDir, ".janus", "users", u.ID, "PROFILE.md")
	}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			p.Doc = string(data)
		}
	}
	return p
}
