package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// snapshotDocument is the wire form shared by the file provider and the
// upstream topology API
type snapshotDocument struct {
	Metros     []Metro     `json:"metros"`
	Devices    []Device    `json:"devices"`
	Links      []Link      `json:"links"`
	Validators []Validator `json:"validators"`
	Error      string      `json:"error,omitempty"`
}

// FileProvider loads topology snapshots from a JSON document on disk.
// Pair it with the snapshot watcher to refresh when the file changes.
type FileProvider struct {
	Path string
}

// NewFileProvider creates a provider reading from the given path
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// Fetch reads and decodes the snapshot file
func (p *FileProvider) Fetch(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}

	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse topology file %s: %w", p.Path, err)
	}

	return NewSnapshot(doc.Metros, doc.Devices, doc.Links, doc.Validators), nil
}

// HTTPProvider loads topology snapshots from the upstream topology API
type HTTPProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPProvider creates a provider against the given API base URL
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Fetch requests /api/topology and decodes the response
func (p *HTTPProvider) Fetch(ctx context.Context) (*Snapshot, error) {
	url := p.BaseURL + "/api/topology"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build topology request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("topology request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("topology request returned status %d", resp.StatusCode)
	}

	var doc snapshotDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode topology response: %w", err)
	}
	if doc.Error != "" {
		return nil, fmt.Errorf("topology API error: %s", doc.Error)
	}

	return NewSnapshot(doc.Metros, doc.Devices, doc.Links, doc.Validators), nil
}
