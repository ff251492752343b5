// Package skills loads SKILL.md instruction packages from the three
// directories spec.md §6 names (workspace, global, builtin) and renders
// them into the context builder's skills section. Grounded on the
// teacher's skills.SkillsLoader call shape used throughout
// pkg/agent/context.go (NewSkillsLoader, BuildSkillsSummary, ListSkills,
// LoadSkillsForContext) — the teacher's own pkg/skills package wasn't in
// the retrieval pack, so the loader is rebuilt from those call sites
// against the SKILL.md format spec.md §6 specifies.
package skills

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/janus-run/janus/internal/logger"
)

// Requires names external binaries/env vars a skill needs to function.
type Requires struct {
	Bins []string `yaml:"bins,omitempty"`
	Env  []string `yaml:"env,omitempty"`
}

// Skill is one parsed SKILL.md file.
type Skill struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Version     string   `yaml:"version,omitempty"`
	Requires    Requires `yaml:"requires,omitempty"`
	Always      bool     `yaml:"always,omitempty"`

	Body     string `yaml:"-"`
	Location string `yaml:"-"`
}

// Loader scans skill directories in precedence order: workspace skills
// override global skills, which override builtin skills, by name.
type Loader struct {
	dirs []string
}

// NewLoader mirrors the teacher's NewSkillsLoader(workspace, global, builtin)
// three-directory precedence.
func NewLoader(workspaceSkillsDir, globalSkillsDir, builtinSkillsDir string) *Loader {
	dirs := []string{}
	for _, d := range []string{workspaceSkillsDir, globalSkillsDir, builtinSkillsDir} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return &Loader{dirs: dirs}
}

// List scans all configured directories and returns every parsed skill,
// deduplicated by name (first directory in precedence order wins).
func (l *Loader) List() []Skill {
	seen := map[string]bool{}
	var out []Skill

	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			skillPath := filepath.Join(dir, e.Name(), "SKILL.md")
			data, err := os.ReadFile(skillPath)
			if err != nil {
				continue
			}
			sk, err := parseSkill(data, skillPath)
			if err != nil {
				logger.WarnCF("skills", "failed to parse SKILL.md", map[string]interface{}{
					"path":  skillPath,
					"error": err.Error(),
				})
				continue
			}
			if sk.Name == "" {
				sk.Name = e.Name()
			}
			if seen[sk.Name] {
				continue
			}
			seen[sk.Name] = true
			out = append(out, sk)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// parseSkill splits the `---`-delimited YAML front matter from the
// markdown body (spec.md §6 SKILL.md format).
func parseSkill(data []byte, location string) (Skill, error) {
	text := string(data)
	var sk Skill
	sk.Location = location

	if !strings.HasPrefix(strings.TrimLeft(text, "\n"), "---") {
		sk.Body = text
		return sk, nil
	}

	trimmed := strings.TrimLeft(text, "\n")
	rest := strings.TrimPrefix(trimmed, "---")
	idx := strings.Index(rest, "\n---")
	if idx == -1 {
		sk.Body = text
		return sk, nil
	}

	frontMatter := rest[:idx]
	body := rest[idx+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	if err := yaml.Unmarshal([]byte(frontMatter), &sk); err != nil {
		return sk, err
	}
	sk.Body = strings.TrimSpace(body)
	sk.Location = location
	return sk, nil
}

// Filtered applies a per-user allow/deny list to a skill set by name.
func Filtered(all []Skill, allow, deny []string) []Skill {
	denySet := toSet(deny)
	allowSet := toSet(allow)

	var out []Skill
	for _, s := range all {
		if len(denySet) > 0 && denySet[s.Name] {
			continue
		}
		if len(allowSet) > 0 && !allowSet[s.Name] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func toSet(list []string) map[string]bool {
	if len(list) == 0 {
		return nil
	}
	m := make(map[string]bool, len(list))
	for _, v := range list {
		m[v] = true
	}
	return m
}
