package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// HTTPContentProvider fetches generated slides from the plugin service.
type HTTPContentProvider struct {
	baseURL string
	client  *http.Client
}

// compile-time check: *HTTPContentProvider must satisfy port.ContentProvider
var _ port.ContentProvider = (*HTTPContentProvider)(nil)

func NewHTTPContentProvider(baseURL string, client *http.Client) *HTTPContentProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPContentProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *HTTPContentProvider) Content(ctx context.Context, channelID int64) ([]model.Slide, error) {
	url := fmt.Sprintf("%s/channels/%d/content", p.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plugin service returned %s", resp.Status)
	}

	var slides []model.Slide
	if err := json.NewDecoder(resp.Body).Decode(&slides); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return slides, nil
}
