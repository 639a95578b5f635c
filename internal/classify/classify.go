// Package classify labels models as official or derivative, assigns them to a
// release family, and resolves their derivation kind. All three are pure
// text-rule classifications with no learned component, chosen deliberately so
// every label is deterministic and auditable.
package classify

import (
	"strings"

	"github.com/modelpulse/tracker-cli/internal/model"
)

// Classifier applies an immutable rule set to observations.
type Classifier struct {
	rules Rules
}

// New builds a classifier from a rule set.
func New(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Rules returns the rule set the classifier was built with.
func (c *Classifier) Rules() Rules { return c.rules }

// Official reports whether the publisher belongs to the releasing
// organization: a case-insensitive substring test against the configured
// keywords. Everything else is derivative.
func (c *Classifier) Official(publisher string) bool {
	p := strings.ToLower(publisher)
	for _, kw := range c.rules.OfficialKeywords {
		if strings.Contains(p, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Family assigns an observation to a release family. Signals in order of
// reliability: the adapter's explicit hint, the declared parent, the model
// name itself. First match wins; no match falls back to the default family.
func (c *Classifier) Family(obs model.Observation) string {
	if !model.IsMissing(obs.ReleaseFamily) {
		if f, ok := c.rules.Family(obs.ReleaseFamily); ok {
			return f.Name
		}
	}
	if obs.HasParent() {
		if name, ok := c.matchFamily(obs.DeclaredParent); ok {
			return name
		}
	}
	if name, ok := c.matchFamily(obs.ModelName); ok {
		return name
	}
	return c.rules.DefaultFamily
}

func (c *Classifier) matchFamily(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, f := range c.rules.Families {
		for _, kw := range f.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return f.Name, true
			}
		}
	}
	return "", false
}

// InFamily reports whether an observation belongs to the named family.
func (c *Classifier) InFamily(obs model.Observation, family string) bool {
	return strings.EqualFold(c.Family(obs), family)
}

// Structured tag prefixes emitted by the generalist hub's model metadata.
// These outrank every name heuristic.
var tagKindPrefixes = []struct {
	prefix string
	kind   model.DerivationKind
}{
	{"base_model:quantized:", model.KindQuantized},
	{"base_model:adapter:", model.KindAdapter},
	{"base_model:lora:", model.KindLoRA},
	{"base_model:merge:", model.KindMerge},
	{"base_model:finetune:", model.KindFinetune},
}

var quantizedNameKeywords = []string{
	"-gguf", ".gguf", "gguf", "-gptq", "-awq", "-exl2",
	"-4bit", "-8bit", "-6bit", "-2bit",
	"int2", "int4", "int8",
	"-q1_", "-q2_", "-q3_", "-q4_", "-q5_", "-q6_", "-q8_",
	"q1_", "q2_", "q3_", "q4_", "q5_", "q6_", "q8_",
	"fp8", // bf16/fp16 excluded: they mark precision, not quantization
	"w4a8", "w4a16", "w2a8", "w8a8", "w4a4",
	"mlx-4bit", "mlx-8bit", "mlx-6bit",
	"-quantized", "_quantized", "quantized",
}

var (
	loraNameKeywords     = []string{"lora", "low-rank-adaptation", "low-rank"}
	adapterNameKeywords  = []string{"adapter", "peft", "prefix-tuning", "prompt-tuning"}
	mergeNameKeywords    = []string{"-merge", "_merge", "-merged", "_merged"}
	finetuneNameKeywords = []string{"finetune", "fine-tune", "fine-tuned", "finetuned", "trained-on"}
)

// Kind resolves an observation's derivation kind by strict priority:
// the adapter's structured kind field, structured metadata tags, PEFT tag
// signals, then the official-original rule, then name-substring heuristics.
// The official check runs before the name fallback: official releases carry
// precision suffixes (FP8, W4A8) in their names that would otherwise read as
// quantized derivatives. Everything left is "other".
func (c *Classifier) Kind(obs model.Observation) model.DerivationKind {
	if model.ValidKind(obs.DerivationKind) {
		return model.DerivationKind(obs.DerivationKind)
	}

	if kind, ok := kindFromTags(obs.Tags); ok {
		return kind
	}

	if !obs.HasParent() && c.Official(obs.Publisher) {
		return model.KindOriginal
	}

	if kind, ok := kindFromName(obs.ModelName); ok {
		return kind
	}

	return model.KindOther
}

func kindFromTags(tags []string) (model.DerivationKind, bool) {
	if len(tags) == 0 {
		return "", false
	}
	lower := make([]string, len(tags))
	for i, t := range tags {
		lower[i] = strings.ToLower(t)
	}

	for _, t := range lower {
		for _, p := range tagKindPrefixes {
			if strings.HasPrefix(t, p.prefix) {
				return p.kind, true
			}
		}
	}

	// PEFT signals without an explicit base_model tag.
	joined := strings.Join(lower, " ")
	for _, indicator := range []string{"peft", "prefix-tuning", "prompt-tuning", "adapter"} {
		if strings.Contains(joined, indicator) {
			if strings.Contains(joined, "lora") {
				return model.KindLoRA, true
			}
			return model.KindAdapter, true
		}
	}
	return "", false
}

func kindFromName(name string) (model.DerivationKind, bool) {
	lower := strings.ToLower(name)
	for _, kw := range quantizedNameKeywords {
		if strings.Contains(lower, kw) {
			return model.KindQuantized, true
		}
	}
	for _, kw := range loraNameKeywords {
		if strings.Contains(lower, kw) {
			return model.KindLoRA, true
		}
	}
	for _, kw := range adapterNameKeywords {
		if strings.Contains(lower, kw) {
			return model.KindAdapter, true
		}
	}
	for _, kw := range mergeNameKeywords {
		if strings.Contains(lower, kw) {
			return model.KindMerge, true
		}
	}
	for _, kw := range finetuneNameKeywords {
		if strings.Contains(lower, kw) {
			return model.KindFinetune, true
		}
	}
	return "", false
}
