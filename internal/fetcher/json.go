package fetcher

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// GetJSON fetches the URL and decodes the response body into out.
func (f *HTTP) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := f.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return eris.Wrapf(err, "fetcher: decode json from %s", rawURL)
	}
	return nil
}
