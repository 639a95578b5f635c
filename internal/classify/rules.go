package classify

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules is the immutable rule set driving all classification. It is built
// once (defaults or a YAML rules file) and passed into the classifier and
// report engine at construction time so rule changes are versionable and the
// classifier stays independently testable.
type Rules struct {
	// OfficialKeywords mark a publisher as the releasing organization by
	// case-insensitive substring match: English name, localized name, and
	// known aliases. A publisher accidentally containing a keyword as part of
	// an unrelated name is misclassified as official; that is a documented
	// property of the rule, not something to patch with fuzzier matching.
	OfficialKeywords []string `yaml:"official_keywords"`

	// Families are checked in order; the first match wins.
	Families []FamilyRule `yaml:"families"`

	// DefaultFamily receives models no family rule matched.
	DefaultFamily string `yaml:"default_family"`

	// ReferencePlatform is the one platform with stable cross-session model
	// identity, used for new-model diffing.
	ReferencePlatform string `yaml:"reference_platform"`

	// Platforms lists every tracked platform in display order.
	Platforms []PlatformRule `yaml:"platforms"`
}

// FamilyRule groups related official models and their derivatives under one
// named release series.
type FamilyRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// PlatformRule describes one hosting platform.
type PlatformRule struct {
	Key               string `yaml:"key"`
	DisplayName       string `yaml:"display_name"`
	TracksDerivatives bool   `yaml:"tracks_derivatives"` // platform leaderboards include a derivative column
}

// DefaultRules returns the rule set of the production deployment: the
// ERNIE-4.5 and PaddleOCR-VL release lines published by Baidu/PaddlePaddle,
// tracked across seven hosting platforms.
func DefaultRules() Rules {
	return Rules{
		OfficialKeywords: []string{"baidu", "百度", "paddle", "yiyan", "一言"},
		Families: []FamilyRule{
			{Name: "ERNIE-4.5", Keywords: []string{"ernie-4.5"}},
			{Name: "PaddleOCR-VL", Keywords: []string{"paddleocr-vl"}},
		},
		DefaultFamily:     "ERNIE-4.5",
		ReferencePlatform: "huggingface",
		Platforms: []PlatformRule{
			{Key: "huggingface", DisplayName: "Hugging Face", TracksDerivatives: true},
			{Key: "aistudio", DisplayName: "AI Studio"},
			{Key: "modelscope", DisplayName: "ModelScope", TracksDerivatives: true},
			{Key: "gitcode", DisplayName: "GitCode"},
			{Key: "modelers", DisplayName: "Modelers"},
			{Key: "caict", DisplayName: "CAICT AIHub"},
			{Key: "gitee", DisplayName: "Gitee"},
		},
	}
}

// LoadRules reads a rule set from a YAML file, filling gaps from defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "classify: read rules %s", path)
	}

	rules := DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, eris.Wrapf(err, "classify: parse rules %s", path)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks structural requirements on a rule set.
func (r Rules) Validate() error {
	if len(r.OfficialKeywords) == 0 {
		return eris.New("classify: rules need at least one official keyword")
	}
	if len(r.Families) == 0 {
		return eris.New("classify: rules need at least one family")
	}
	if r.DefaultFamily == "" {
		return eris.New("classify: rules need a default family")
	}
	if r.ReferencePlatform == "" {
		return eris.New("classify: rules need a reference platform")
	}
	for _, p := range r.Platforms {
		if p.Key == "" {
			return eris.New("classify: platform rule with empty key")
		}
	}
	return nil
}

// Family returns the family rule by name, if present.
func (r Rules) Family(name string) (FamilyRule, bool) {
	for _, f := range r.Families {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FamilyRule{}, false
}

// Platform returns the platform rule by key, if present.
func (r Rules) Platform(key string) (PlatformRule, bool) {
	for _, p := range r.Platforms {
		if p.Key == key {
			return p, true
		}
	}
	return PlatformRule{}, false
}

// DisplayName maps a platform key to its display name, falling back to the key.
func (r Rules) DisplayName(key string) string {
	if p, ok := r.Platform(key); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return key
}
