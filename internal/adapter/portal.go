package adapter

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/modelpulse/tracker-cli/internal/fetcher"
	"github.com/modelpulse/tracker-cli/internal/model"
)

// PortalPage is one fixed model page a portal adapter scrapes. Vendor
// portals have no usable API and no search with stable identity, so the
// tracked official models are enumerated explicitly.
type PortalPage struct {
	URL       string
	ModelName string
	Publisher string
}

// Portal scrapes a fixed list of model pages with a CSS selector for the
// page's download counter.
type Portal struct {
	name          string
	platform      string
	countSelector string
	pages         []PortalPage
}

func NewPortal(name, platform, countSelector string, pages []PortalPage) *Portal {
	return &Portal{name: name, platform: platform, countSelector: countSelector, pages: pages}
}

func (p *Portal) Name() string     { return p.name }
func (p *Portal) Platform() string { return p.platform }

func (p *Portal) Fetch(ctx context.Context, f *fetcher.HTTP, day model.Day) ([]model.Observation, error) {
	rows := make([]model.Observation, 0, len(p.pages))
	for _, page := range p.pages {
		count := "0"
		doc, err := f.GetDocument(ctx, page.URL)
		if err != nil {
			zap.L().Warn("portal page fetch failed",
				zap.String("adapter", p.name),
				zap.String("url", page.URL),
				zap.Error(err),
			)
			continue
		}
		if text := strings.TrimSpace(doc.Find(p.countSelector).First().Text()); text != "" {
			count = strings.ReplaceAll(text, ",", "")
		}

		rows = append(rows, model.Observation{
			Day:            day,
			Platform:       p.platform,
			ModelName:      page.ModelName,
			Publisher:      page.Publisher,
			DownloadCount:  count,
			SourceURL:      page.URL,
			SourcePriority: model.SourceSearch,
		})
	}
	return rows, nil
}

// defaultPortals lists the vendor portals with their tracked official model
// pages. Extending coverage means adding pages here or shipping a custom
// registry.
func defaultPortals() []*Portal {
	return []*Portal{
		NewPortal("aistudio", "aistudio", ".model-use-count", []PortalPage{
			{URL: "https://aistudio.baidu.com/modelsdetail/30421", ModelName: "ERNIE-4.5-Turbo", Publisher: "Baidu"},
			{URL: "https://aistudio.baidu.com/modelsdetail/32061", ModelName: "PaddleOCR-VL", Publisher: "Baidu"},
		}),
		NewPortal("gitcode", "gitcode", ".download-count", []PortalPage{
			{URL: "https://gitcode.com/paddlepaddle/ERNIE-4.5-0.3B-PT", ModelName: "ERNIE-4.5-0.3B-PT", Publisher: "Baidu"},
			{URL: "https://gitcode.com/paddlepaddle/PaddleOCR-VL", ModelName: "PaddleOCR-VL", Publisher: "Baidu"},
		}),
		NewPortal("modelers", "modelers", ".statistics-download .value", []PortalPage{
			{URL: "https://modelers.cn/models/Baidu/ERNIE-4.5-21B-A3B-PT", ModelName: "ERNIE-4.5-21B-A3B-PT", Publisher: "Baidu"},
		}),
		NewPortal("caict", "caict", ".summary-downloads", []PortalPage{
			{URL: "https://aihub.caict.ac.cn/models/detail/ernie-4.5", ModelName: "ERNIE-4.5", Publisher: "Baidu"},
		}),
		NewPortal("gitee", "gitee", ".model-download-num", []PortalPage{
			{URL: "https://ai.gitee.com/models/baidu/ERNIE-4.5-300B-A47B-PT", ModelName: "ERNIE-4.5-300B-A47B-PT", Publisher: "Baidu"},
		}),
	}
}
