package callable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wirl-lang/wirl/internal/callable/httpsec"
)

// HTTPBinder resolves a `call` target to a remote HTTP endpoint, posting
// inputs/config as a JSON body and reading a JSON outputs map back. Every
// URL is run through httpsec before dial, blocking SSRF vectors the same
// way the teacher's http-worker does for its remote tool calls.
type HTTPBinder struct {
	endpoints map[string]string
	validator *httpsec.URLValidator
	client    *http.Client
}

// NewHTTPBinder builds a binder from a target -> URL table.
func NewHTTPBinder(endpoints map[string]string) *HTTPBinder {
	return &HTTPBinder{
		endpoints: endpoints,
		validator: httpsec.NewURLValidator(),
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *HTTPBinder) Resolve(target string) (Callable, bool) {
	url, ok := b.endpoints[target]
	if !ok {
		return nil, false
	}
	return CallableFunc(func(ctx context.Context, inputs, config map[string]interface{}) (map[string]interface{}, error) {
		return b.invoke(ctx, url, inputs, config)
	}), true
}

func (b *HTTPBinder) invoke(ctx context.Context, url string, inputs, config map[string]interface{}) (map[string]interface{}, error) {
	if err := b.validator.Validate(url); err != nil {
		return nil, fmt.Errorf("callable endpoint rejected: %w", err)
	}

	body, err := json.Marshal(subprocessRequest{Inputs: inputs, Config: config})
	if err != nil {
		return nil, fmt.Errorf("encoding callable request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building callable request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, payload)
	}

	var out subprocessResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s: %s", url, out.Error)
	}
	return out.Outputs, nil
}
