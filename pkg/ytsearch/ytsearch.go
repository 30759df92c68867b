// Package ytsearch queries the YouTube Data API search endpoint.
package ytsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3/search"
	maxResults     = 12
)

var ErrSearchFailed = fmt.Errorf("search failed")

type Result struct {
	VideoId      string `json:"video_id"`
	Title        string `json:"title"`
	ThumbnailUrl string `json:"thumbnail_url"`
	ChannelTitle string `json:"channel_title"`
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

type searchResponse struct {
	Items []struct {
		Id struct {
			VideoId string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails struct {
				Medium struct {
					Url string `json:"url"`
				} `json:"medium"`
			} `json:"thumbnails"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("maxResults", fmt.Sprint(maxResults))
	q.Set("q", query)
	q.Set("type", "video")
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrSearchFailed, resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Id.VideoId == "" {
			continue
		}

		results = append(results, Result{
			VideoId:      item.Id.VideoId,
			Title:        item.Snippet.Title,
			ThumbnailUrl: item.Snippet.Thumbnails.Medium.Url,
			ChannelTitle: item.Snippet.ChannelTitle,
		})
		if len(results) == maxResults {
			break
		}
	}

	return results, nil
}
