package rls

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPAuthority queries a management API for table protection state.
type HTTPAuthority struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewHTTPAuthority returns an authority backed by the management API at
// baseURL. The client timeout bounds every call so an unreachable authority
// degrades instead of hanging the scan.
func NewHTTPAuthority(baseURL string, serviceKey string) *HTTPAuthority {
	return &HTTPAuthority{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetTimeout overrides the default per-call timeout.
func (a *HTTPAuthority) SetTimeout(d time.Duration) {
	if d > 0 {
		a.httpClient.Timeout = d
	}
}

func (a *HTTPAuthority) TableSecurity(ctx context.Context, table string) (TableStatus, error) {
	endpoint := fmt.Sprintf("%s/api/v1/tables/%s/security", a.baseURL, url.PathEscape(table))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TableStatus{}, err
	}
	if a.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.serviceKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return TableStatus{}, fmt.Errorf("authority request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return TableStatus{}, ErrTableNotFound
	default:
		return TableStatus{}, fmt.Errorf("authority returned status %d for table %q", resp.StatusCode, table)
	}

	var status TableStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return TableStatus{}, fmt.Errorf("couldn't decode authority response: %w", err)
	}
	return status, nil
}
