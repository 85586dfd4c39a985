package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ImageData is the metadata kept for one fetched image. A nil *ImageData in
// a per-slide list means no image was found for that slide's theme.
type ImageData struct {
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Description string `json:"description"`
}

// Client searches Unsplash for slide imagery.
type Client struct {
	BaseURL   string
	AccessKey string
	Client    *http.Client
}

func New(baseURL, accessKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.unsplash.com"
	}
	return &Client{
		BaseURL:   baseURL,
		AccessKey: accessKey,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type searchResp struct {
	Results []struct {
		Width       int     `json:"width"`
		Height      int     `json:"height"`
		Description *string `json:"description"`
		AltDesc     *string `json:"alt_description"`
		URLs        struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

// Search returns the best match for a query, or nil when nothing matched.
// "No result" is not an error; only transport and API failures are.
func (c *Client) Search(ctx context.Context, query string) (*ImageData, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/search/photos?query=%s&per_page=1&orientation=landscape",
		strings.TrimRight(c.BaseURL, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Client-ID "+c.AccessKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("unsplash: status %d: %s", resp.StatusCode, body)
	}

	var decoded searchResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if len(decoded.Results) == 0 {
		return nil, nil
	}

	r := decoded.Results[0]
	desc := ""
	if r.Description != nil {
		desc = *r.Description
	} else if r.AltDesc != nil {
		desc = *r.AltDesc
	}
	return &ImageData{
		URL:         r.URLs.Regular,
		Width:       r.Width,
		Height:      r.Height,
		Description: desc,
	}, nil
}

// ForSlides resolves one query per slide, preserving order. Slides with an
// empty theme or no match get a nil entry; the second return is the hit count.
func (c *Client) ForSlides(ctx context.Context, queries []string) ([]*ImageData, int, error) {
	out := make([]*ImageData, len(queries))
	fetched := 0
	for i, q := range queries {
		img, err := c.Search(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		out[i] = img
		if img != nil {
			fetched++
		}
	}
	return out, fetched, nil
}
