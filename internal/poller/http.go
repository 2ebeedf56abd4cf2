package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrTransport covers everything that is not an answer from the status
// endpoint: network failures, 5xx without a known state, undecodable bodies.
var ErrTransport = errors.New("status check transport error")

// HTTPChecker calls GET {base}/api/payments/phonepe/status.
type HTTPChecker struct {
	baseURL string
	client  *http.Client
}

func NewHTTPChecker(baseURL string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, merchantOrderID string) (*Response, error) {
	endpoint := h.baseURL + "/api/payments/phonepe/status?merchantTransactionId=" + url.QueryEscape(merchantOrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: status %d: undecodable body", ErrTransport, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return &out, fmt.Errorf("%w: %s", ErrNotFound, out.Message)
	}
	if resp.StatusCode >= 500 && out.gatewayState() == "" {
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, out.Message)
	}
	return &out, nil
}
