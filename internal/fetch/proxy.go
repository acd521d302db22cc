package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// maxProxyResponseBytes caps how much of a provider response is read.
const maxProxyResponseBytes = 10 << 20

// ProxyProvider issues a fetch request to an external provider endpoint.
// A payment-required response is an ordinary failure: this system does
// not pay providers automatically.
type ProxyProvider struct {
	desc   webintel.ProviderDescriptor
	client *http.Client
}

// NewProxyProvider builds a proxied provider. A nil client gets a default.
func NewProxyProvider(desc webintel.ProviderDescriptor, client *http.Client) *ProxyProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &ProxyProvider{desc: desc, client: client}
}

// Descriptor returns the static provider description.
func (p *ProxyProvider) Descriptor() webintel.ProviderDescriptor {
	return p.desc
}

type proxyRequest struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout"`
}

type proxyResponse struct {
	Content     string `json:"content"`
	Markdown    string `json:"markdown"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Fetch POSTs the request to the provider endpoint and maps the response.
func (p *ProxyProvider) Fetch(ctx context.Context, url string, timeout time.Duration) (webintel.Page, error) {
	payload, err := json.Marshal(proxyRequest{URL: url, TimeoutSeconds: int(timeout.Seconds())})
	if err != nil {
		return webintel.Page{}, fmt.Errorf("marshal proxy request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.desc.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return webintel.Page{}, fmt.Errorf("create proxy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return webintel.Page{}, fmt.Errorf("call provider %s: %w", p.desc.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return webintel.Page{}, fmt.Errorf("provider %s: payment required", p.desc.ID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return webintel.Page{}, fmt.Errorf("provider %s: status %d", p.desc.ID, resp.StatusCode)
	}

	var decoded proxyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProxyResponseBytes)).Decode(&decoded); err != nil {
		return webintel.Page{}, fmt.Errorf("decode provider %s response: %w", p.desc.ID, err)
	}
	content := decoded.Content
	if content == "" {
		content = decoded.Markdown
	}
	if content == "" {
		return webintel.Page{}, fmt.Errorf("provider %s returned empty content", p.desc.ID)
	}

	metadata := map[string]string{"source_url": url}
	if decoded.Description != "" {
		metadata["description"] = decoded.Description
	}
	return webintel.Page{Title: decoded.Title, Content: content, Metadata: metadata}, nil
}
