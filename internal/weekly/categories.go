package weekly

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"statuslink/internal/domain"
)

type categoryFile struct {
	Categories []domain.CategoryConfig `yaml:"categories"`
}

// DefaultCategoryConfigs is used when no categories file is configured.
func DefaultCategoryConfigs() []domain.CategoryConfig {
	return []domain.CategoryConfig{
		{Name: "In Progress", Tags: []string{"[WORKING]", "[IN PROGRESS]", "[REVIEW]", "[QA]", "[UAT]"}},
		{Name: "Blocked", Tags: []string{"[BLOCKED]", "[HOLD]", "[PENDING]"}},
		{Name: "Deployed", Tags: []string{"[DONE]", "[DEPLOYED]", "[COMPLETED]"}},
	}
}

// LoadCategoryConfigs reads categories from a YAML file shaped as
//
//	categories:
//	  - name: Blocked
//	    tags: ["[BLOCKED]"]
//
// An empty path yields the defaults.
func LoadCategoryConfigs(path string) ([]domain.CategoryConfig, error) {
	if path == "" {
		return DefaultCategoryConfigs(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	var f categoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse categories yaml: %w", err)
	}
	return f.Categories, nil
}

// AppendCategoryTag adds tag to the named category, creating the category
// (and the file) when missing. Tags already present (case-insensitive) are
// left alone.
func AppendCategoryTag(path, category, tag string) error {
	category = strings.TrimSpace(category)
	tag = strings.TrimSpace(tag)
	if category == "" || tag == "" {
		return nil
	}

	var f categoryFile
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("parse existing categories: %w", err)
		}
	} else if os.IsNotExist(err) {
		f.Categories = DefaultCategoryConfigs()
	} else {
		return fmt.Errorf("read categories: %w", err)
	}

	idx := -1
	for i, c := range f.Categories {
		if strings.EqualFold(strings.TrimSpace(c.Name), category) {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.Categories = append(f.Categories, domain.CategoryConfig{Name: category})
		idx = len(f.Categories) - 1
	}
	for _, t := range f.Categories[idx].Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return nil
		}
	}
	f.Categories[idx].Tags = append(f.Categories[idx].Tags, tag)
	return saveCategories(path, &f)
}

func saveCategories(path string, f *categoryFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create categories dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}
