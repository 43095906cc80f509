package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lumen-assistant/core/internal/assistant/model"
)

// ConfigStore supplies skill, locale and global answer configuration. The
// core consumes this configuration, it does not own it.
type ConfigStore interface {
	// SkillConfig loads the static config of a skill and reports the path it
	// was loaded from.
	SkillConfig(skillName string) (*model.SkillConfig, string, error)

	// LocaleConfig loads the locale half of a skill configuration.
	LocaleConfig(skillName, lang string) (*model.LocaleConfig, error)

	// GlobalAnswers loads the process-wide fallback answer set for a locale.
	GlobalAnswers(lang string) (map[string]model.AnswerSet, error)

	// SkillNames lists every installed skill, sorted.
	SkillNames() ([]string, error)
}

// FSConfigStore reads configuration from the conventional on-disk layout:
// skills/<name>/config/skill.json, skills/<name>/config/<lang>.json and
// core/data/<lang>/answers.json.
type FSConfigStore struct {
	root string
}

func NewFSConfigStore(root string) *FSConfigStore {
	return &FSConfigStore{root: root}
}

func (s *FSConfigStore) SkillConfig(skillName string) (*model.SkillConfig, string, error) {
	path := filepath.Join(s.root, "skills", skillName, "config", "skill.json")
	var cfg model.SkillConfig
	if err := readJSON(path, &cfg); err != nil {
		return nil, "", err
	}
	if cfg.Name == "" {
		cfg.Name = skillName
	}
	return &cfg, path, nil
}

func (s *FSConfigStore) LocaleConfig(skillName, lang string) (*model.LocaleConfig, error) {
	path := filepath.Join(s.root, "skills", skillName, "config", lang+".json")
	var cfg model.LocaleConfig
	if err := readJSON(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Lang == "" {
		cfg.Lang = lang
	}
	return &cfg, nil
}

func (s *FSConfigStore) GlobalAnswers(lang string) (map[string]model.AnswerSet, error) {
	path := filepath.Join(s.root, "core", "data", lang, "answers.json")
	var doc struct {
		Answers map[string]model.AnswerSet `json:"answers"`
	}
	if err := readJSON(path, &doc); err != nil {
		return nil, err
	}
	return doc.Answers, nil
}

func (s *FSConfigStore) SkillNames() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "skills"))
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

var _ ConfigStore = (*FSConfigStore)(nil)
