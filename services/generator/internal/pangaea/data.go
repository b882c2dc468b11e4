package pangaea

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultDataBaseURL = "https://doi.pangaea.de/10.1594/PANGAEA."

// DataClient downloads dataset tables in PANGAEA's textfile format.
type DataClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewDataClient returns a client for baseURL, which has the dataset ID
// appended. An empty baseURL means the public DOI resolver.
func NewDataClient(httpClient *http.Client, baseURL string) *DataClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultDataBaseURL
	}
	return &DataClient{httpClient: httpClient, baseURL: baseURL}
}

// DataURL returns the download URL for id.
func (c *DataClient) DataURL(id string) string {
	return c.baseURL + strings.TrimSpace(id) + "?format=textfile"
}

// FetchData downloads the dataset table.
func (c *DataClient) FetchData(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DataURL(id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request dataset %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request dataset %s: unexpected status %s", id, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", id, err)
	}
	return body, nil
}
