// Package normalize collapses cosmetic identity variance in raw observations
// before any grouping by (platform, publisher, model_name). Skipping it
// produces spurious duplicate identities and double counting, so every
// grouping consumer goes through here.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/modelpulse/tracker-cli/internal/model"
)

var titleCaser = cases.Title(language.English)

// ModelName strips a redundant "publisher/" prefix from a model name when the
// prefix case-insensitively equals the publisher field:
//
//	("paddlepaddle/ERNIE-4.5-0.3B-PT", "PaddlePaddle") -> "ERNIE-4.5-0.3B-PT"
//
// A prefix naming a different publisher is left alone.
func ModelName(name, publisher string) string {
	name = strings.TrimSpace(name)
	publisher = strings.TrimSpace(publisher)
	if model.IsMissing(publisher) || !strings.Contains(name, "/") {
		return name
	}
	prefix, rest, ok := strings.Cut(name, "/")
	if ok && strings.EqualFold(prefix, publisher) {
		return rest
	}
	return name
}

// Publisher canonicalizes publisher casing to a single title-cased form so
// case variants ("publisherx", "PublisherX") collapse into one identity.
// Missing-value markers pass through untouched.
func Publisher(publisher string) string {
	publisher = strings.TrimSpace(publisher)
	if model.IsMissing(publisher) {
		return publisher
	}
	return titleCaser.String(publisher)
}

// Observation returns a copy of obs with its identity fields normalized.
func Observation(obs model.Observation) model.Observation {
	obs.ModelName = ModelName(obs.ModelName, obs.Publisher)
	obs.Publisher = Publisher(obs.Publisher)
	return obs
}

// Observations normalizes a slice in place and returns it.
func Observations(rows []model.Observation) []model.Observation {
	for i := range rows {
		rows[i] = Observation(rows[i])
	}
	return rows
}

// Snapshots normalizes the identity fields of resolved snapshots in place.
func Snapshots(rows []model.Snapshot) []model.Snapshot {
	for i := range rows {
		rows[i].Observation = Observation(rows[i].Observation)
	}
	return rows
}
