package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/modelpulse/tracker-cli/internal/fetcher"
	"github.com/modelpulse/tracker-cli/internal/model"
)

const marketplaceBaseURL = "https://modelscope.cn"

// Marketplace scrapes the regional model marketplace through its paged
// JSON search API.
type Marketplace struct {
	platform string
	baseURL  string
	keywords []string
}

func NewMarketplace(platform, baseURL string, keywords []string) *Marketplace {
	return &Marketplace{platform: platform, baseURL: baseURL, keywords: keywords}
}

func (m *Marketplace) Name() string     { return "marketplace" }
func (m *Marketplace) Platform() string { return m.platform }

type marketplacePage struct {
	Data struct {
		Models []marketplaceModel `json:"models"`
		Total  int                `json:"total"`
	} `json:"data"`
}

type marketplaceModel struct {
	Name         string   `json:"name"`
	Owner        string   `json:"owner"`
	Downloads    int64    `json:"downloads"`
	BaseModel    string   `json:"base_model"`
	Tags         []string `json:"tags"`
	CreatedAt    string   `json:"created_at"`
	LastModified string   `json:"last_modified"`
}

func (m *Marketplace) Fetch(ctx context.Context, f *fetcher.HTTP, day model.Day) ([]model.Observation, error) {
	var rows []model.Observation
	seen := make(map[string]struct{})

	for _, term := range m.keywords {
		for page := 1; ; page++ {
			var resp marketplacePage
			searchURL := fmt.Sprintf("%s/api/v1/models?search=%s&page=%d",
				m.baseURL, url.QueryEscape(term), page)
			if err := f.GetJSON(ctx, searchURL, &resp); err != nil {
				zap.L().Warn("marketplace search failed",
					zap.String("term", term),
					zap.Int("page", page),
					zap.Error(err),
				)
				break
			}
			if len(resp.Data.Models) == 0 {
				break
			}

			for _, mm := range resp.Data.Models {
				id := mm.Owner + "/" + mm.Name
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}

				rows = append(rows, model.Observation{
					Day:            day,
					Platform:       m.platform,
					ModelName:      mm.Name,
					Publisher:      mm.Owner,
					DownloadCount:  fmt.Sprintf("%d", mm.Downloads),
					DeclaredParent: strings.TrimSpace(mm.BaseModel),
					Tags:           mm.Tags,
					SourceURL:      m.baseURL + "/models/" + id,
					SearchKeyword:  term,
					CreatedAt:      mm.CreatedAt,
					LastModified:   mm.LastModified,
					SourcePriority: model.SourceSearch,
				})
			}
		}
	}
	return rows, nil
}
