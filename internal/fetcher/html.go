package fetcher

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// GetDocument fetches the URL and parses the response as an HTML document.
func (f *HTTP) GetDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := f.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse html from %s", rawURL)
	}
	return doc, nil
}
