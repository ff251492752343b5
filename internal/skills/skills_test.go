package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListParsesFrontMatterAndBody(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "deploy", `---
name: deploy
description: deploys the service
version: "1.0"
requires:
  bins:
    - docker
always: true
---

# Deploy

Run the deploy script.`)

	l := NewLoader(dir, "", "")
	all := l.List()
	if len(all) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(all))
	}
	s := all[0]
	if s.Name != "deploy" || s.Description != "deploys the service" {
		t.Fatalf("unexpected front matter: %+v", s)
	}
	if !s.Always {
		t.Fatal("expected always=true")
	}
	if len(s.Requires.Bins) != 1 || s.Requires.Bins[0] != "docker" {
		t.Fatalf("expected requires.bins=[docker], got %+v", s.Requires)
	}
	if s.Body == "" {
		t.Fatal("expected non-empty body")
	}
}

func TestListPrecedenceWorkspaceOverridesGlobal(t *testing.T) {
	workspace := t.TempDir()
	global := t.TempDir()
	writeSkill(t, workspace, "shared", "---\nname: shared\ndescription: workspace version\n---\nbody")
	writeSkill(t, global, "shared", "---\nname: shared\ndescription: global version\n---\nbody")

	l := NewLoader(workspace, global, "")
	all := l.List()
	if len(all) != 1 {
		t.Fatalf("expected 1 deduplicated skill, got %d", len(all))
	}
	if all[0].Description != "workspace version" {
		t.Fatalf("expected workspace to win precedence, got %q", all[0].Description)
	}
}

func TestFilteredAllowDeny(t *testing.T) {
	all := []Skill{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	denied := Filtered(all, nil, []string{"b"})
	if len(denied) != 2 {
		t.Fatalf("expected 2 after deny, got %d", len(denied))
	}

	allowed := Filtered(all, []string{"a"}, nil)
	if len(allowed) != 1 || allowed[0].Name != "a" {
		t.Fatalf("expected only 'a', got %+v", allowed)
	}
}
