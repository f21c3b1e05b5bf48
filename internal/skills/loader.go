// Package skills discovers and loads SKILL.md knowledge packs. Skills
// are resolved once at session creation and injected into the prompt
// prefix as data; mid-session changes apply to future sessions only.
package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"qoze/internal/config"
	"qoze/internal/logging"
	"qoze/internal/types"
)

// Tier names, in resolution priority order. Project skills shadow
// user skills of the same name, which shadow builtin skills.
const (
	TierProject = "project"
	TierUser    = "user"
	TierBuiltin = "builtin"
)

// userConfigFile stores skill enable/disable state across sessions,
// relative to the user home directory.
const userConfigFile = ".qoze/skills_config.json"

type userSkillsConfig struct {
	Disabled []string `json:"disabled_skills"`
}

// Loader discovers skills across tiers and caches the result until
// invalidated by the watcher or an explicit Refresh. The project tier
// depends on the session working directory, so discovery is cached per
// workDir; concurrent sessions in different directories never see each
// other's project skills.
type Loader struct {
	cfg config.SkillsConfig

	mu    sync.Mutex
	cache map[string]map[string]types.Skill // workDir -> name -> skill
}

// NewLoader creates a loader with the given discovery configuration.
func NewLoader(cfg config.SkillsConfig) *Loader {
	return &Loader{cfg: cfg}
}

// searchPaths returns (dir, tier) pairs in priority order for the
// given working directory.
func (l *Loader) searchPaths(workDir string) [][2]string {
	paths := [][2]string{
		{filepath.Join(workDir, ".qoze", "skills"), TierProject},
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, [2]string{filepath.Join(home, ".qoze", "skills"), TierUser})
	}
	for _, p := range l.cfg.ExtraPaths {
		paths = append(paths, [2]string{p, TierBuiltin})
	}
	return paths
}

// Invalidate marks the discovery cache dirty. The next ResolveForSession
// re-scans the skill directories; sessions already running keep the
// skill set they resolved at creation.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = nil
}

// ResolveForSession returns the ordered, immutable skill set for a new
// session rooted at workDir. Skills with a trigger glob are included
// only when a file in workDir matches it; skills without a trigger are
// always included. The result is sorted by name so the injected prompt
// block is deterministic.
func (l *Loader) ResolveForSession(workDir string) ([]types.Skill, error) {
	discovered, err := l.discover(workDir)
	if err != nil {
		return nil, err
	}

	resolved := make([]types.Skill, 0, len(discovered))
	for _, skill := range discovered {
		if skill.Trigger != "" {
			ok, err := triggerMatches(workDir, skill.Trigger)
			if err != nil {
				logging.Skills("trigger check failed for %s: %v", skill.Name, err)
				continue
			}
			if !ok {
				continue
			}
		}
		resolved = append(resolved, skill)
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Name < resolved[j].Name })
	return resolved, nil
}

// List returns every discovered skill, including trigger-gated ones,
// sorted by name.
func (l *Loader) List(workDir string) ([]types.Skill, error) {
	discovered, err := l.discover(workDir)
	if err != nil {
		return nil, err
	}
	out := make([]types.Skill, 0, len(discovered))
	for _, s := range discovered {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *Loader) discover(workDir string) (map[string]types.Skill, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if skills, ok := l.cache[workDir]; ok {
		return skills, nil
	}

	disabled := l.disabledSet()
	found := make(map[string]types.Skill)

	for _, pair := range l.searchPaths(workDir) {
		dir, tier := pair[0], pair[1]
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // missing tier directories are normal
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			skillFile := filepath.Join(dir, entry.Name(), "SKILL.md")
			skill, err := loadSkillFile(skillFile, tier)
			if err != nil {
				if !os.IsNotExist(err) {
					logging.Skills("skipping %s: %v", skillFile, err)
				}
				continue
			}
			if disabled[skill.Name] {
				logging.SkillsDebug("skill %s disabled", skill.Name)
				continue
			}
			// Earlier tiers win name clashes.
			if _, exists := found[skill.Name]; !exists {
				found[skill.Name] = skill
			}
		}
	}

	logging.Skills("discovered %d skills for %s", len(found), workDir)
	if l.cache == nil {
		l.cache = make(map[string]map[string]types.Skill)
	}
	l.cache[workDir] = found
	return found, nil
}

// disabledSet merges the config disabled list with the persisted user
// skills config.
func (l *Loader) disabledSet() map[string]bool {
	disabled := make(map[string]bool, len(l.cfg.Disabled))
	for _, name := range l.cfg.Disabled {
		disabled[name] = true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return disabled
	}
	data, err := os.ReadFile(filepath.Join(home, userConfigFile))
	if err != nil {
		return disabled
	}
	var uc userSkillsConfig
	if err := json.Unmarshal(data, &uc); err != nil {
		logging.Skills("invalid skills config: %v", err)
		return disabled
	}
	for _, name := range uc.Disabled {
		disabled[name] = true
	}
	return disabled
}

// SetDisabled persists the disabled state of a skill to the user
// skills config and invalidates the cache.
func (l *Loader) SetDisabled(name string, disable bool) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to locate home directory: %w", err)
	}
	path := filepath.Join(home, userConfigFile)

	var uc userSkillsConfig
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &uc)
	}

	kept := uc.Disabled[:0]
	for _, n := range uc.Disabled {
		if n != name {
			kept = append(kept, n)
		}
	}
	uc.Disabled = kept
	if disable {
		uc.Disabled = append(uc.Disabled, name)
		sort.Strings(uc.Disabled)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(uc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save skills config: %w", err)
	}

	l.Invalidate()
	return nil
}

// loadSkillFile parses a SKILL.md with YAML frontmatter delimited by
// "---" lines. Files without frontmatter or a name are rejected.
func loadSkillFile(path, tier string) (types.Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Skill{}, err
	}

	content := string(data)
	if !strings.HasPrefix(content, "---\n") {
		return types.Skill{}, fmt.Errorf("missing frontmatter")
	}
	parts := strings.SplitN(content, "---\n", 3)
	if len(parts) < 3 {
		return types.Skill{}, fmt.Errorf("unterminated frontmatter")
	}

	var skill types.Skill
	if err := yaml.Unmarshal([]byte(parts[1]), &skill); err != nil {
		return types.Skill{}, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if skill.Name == "" {
		return types.Skill{}, fmt.Errorf("frontmatter missing name")
	}

	skill.Content = strings.TrimSpace(parts[2])
	skill.Location = path
	skill.Tier = tier
	return skill, nil
}

// triggerMatches reports whether any file directly under workDir (or
// its relative path for patterns containing separators) matches the
// glob.
func triggerMatches(workDir, pattern string) (bool, error) {
	matches, err := filepath.Glob(filepath.Join(workDir, pattern))
	if err != nil {
		return false, fmt.Errorf("invalid trigger pattern %q: %w", pattern, err)
	}
	return len(matches) > 0, nil
}
