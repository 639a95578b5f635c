package adapter

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/modelpulse/tracker-cli/internal/fetcher"
	"github.com/modelpulse/tracker-cli/internal/model"
)

const hubBaseURL = "https://huggingface.co"

// Hub scrapes the generalist model hub through its JSON API: keyword search
// for direct hits plus a cross-reference walk over each hit's declared
// derivatives. A model found both ways gets the combined source priority.
type Hub struct {
	platform string
	baseURL  string
	keywords []string
}

func NewHub(platform, baseURL string, keywords []string) *Hub {
	return &Hub{platform: platform, baseURL: baseURL, keywords: keywords}
}

func (h *Hub) Name() string     { return "hub" }
func (h *Hub) Platform() string { return h.platform }

type hubModel struct {
	ID           string   `json:"id"`
	Downloads    int64    `json:"downloads"`
	Likes        int64    `json:"likes"`
	Tags         []string `json:"tags"`
	CreatedAt    string   `json:"createdAt"`
	LastModified string   `json:"lastModified"`
}

func (h *Hub) Fetch(ctx context.Context, f *fetcher.HTTP, day model.Day) ([]model.Observation, error) {
	found := make(map[string]model.Observation)

	for _, term := range h.keywords {
		var hits []hubModel
		searchURL := fmt.Sprintf("%s/api/models?search=%s&full=true&limit=500",
			h.baseURL, url.QueryEscape(term))
		if err := f.GetJSON(ctx, searchURL, &hits); err != nil {
			zap.L().Warn("hub search failed",
				zap.String("term", term),
				zap.Error(err),
			)
			continue
		}
		for _, hit := range hits {
			h.merge(found, hit, day, model.SourceSearch, term, "")
		}

		// walk one level of declared derivatives per direct hit
		for _, hit := range hits {
			var children []hubModel
			treeURL := fmt.Sprintf("%s/api/models?filter=%s&full=true&limit=500",
				h.baseURL, url.QueryEscape("base_model:"+hit.ID))
			if err := f.GetJSON(ctx, treeURL, &children); err != nil {
				zap.L().Warn("hub derivative walk failed",
					zap.String("parent", hit.ID),
					zap.Error(err),
				)
				continue
			}
			for _, child := range children {
				h.merge(found, child, day, model.SourceXref, term, hit.ID)
			}
		}
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]model.Observation, 0, len(found))
	for _, id := range ids {
		rows = append(rows, found[id])
	}
	return rows, nil
}

func (h *Hub) merge(found map[string]model.Observation, m hubModel, day model.Day,
	source model.SourcePriority, term, parent string) {

	obs, seen := found[m.ID]
	if !seen {
		publisher, _, _ := strings.Cut(m.ID, "/")
		obs = model.Observation{
			Day:            day,
			Platform:       h.platform,
			ModelName:      m.ID,
			Publisher:      publisher,
			DownloadCount:  fmt.Sprintf("%d", m.Downloads),
			DeclaredParent: parentFromTags(m.Tags),
			Tags:           m.Tags,
			Likes:          fmt.Sprintf("%d", m.Likes),
			SourceURL:      h.baseURL + "/" + m.ID,
			SearchKeyword:  term,
			CreatedAt:      m.CreatedAt,
			LastModified:   m.LastModified,
			SourcePriority: source,
		}
	}
	if parent != "" && model.IsMissing(obs.DeclaredParent) {
		obs.DeclaredParent = parent
	}
	if seen && obs.SourcePriority != source {
		obs.SourcePriority = model.SourceBoth
	}
	found[m.ID] = obs
}

// parentFromTags extracts the declared parent from structured tags of the
// form "base_model:<id>" or "base_model:<kind>:<id>".
func parentFromTags(tags []string) string {
	for _, tag := range tags {
		rest, ok := strings.CutPrefix(tag, "base_model:")
		if !ok {
			continue
		}
		if _, id, hasKind := strings.Cut(rest, ":"); hasKind {
			return id
		}
		return rest
	}
	return ""
}
