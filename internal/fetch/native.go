package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// NativeConfig controls the in-process collector.
type NativeConfig struct {
	UserAgent string
}

// NativeProvider fetches pages in-process with a Colly collector and
// runs the transform collaborator directly.
type NativeProvider struct {
	desc        webintel.ProviderDescriptor
	cfg         NativeConfig
	transformer webintel.Transformer
	base        *colly.Collector
}

// NewNativeProvider builds the native provider.
func NewNativeProvider(desc webintel.ProviderDescriptor, cfg NativeConfig, transformer webintel.Transformer) *NativeProvider {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &NativeProvider{desc: desc, cfg: cfg, transformer: transformer, base: c}
}

// Descriptor returns the static provider description.
func (p *NativeProvider) Descriptor() webintel.ProviderDescriptor {
	return p.desc
}

// Fetch executes one HTTP GET and transforms the response body.
func (p *NativeProvider) Fetch(ctx context.Context, url string, timeout time.Duration) (webintel.Page, error) {
	collector := p.base.Clone()
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := p.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return webintel.Page{}, err
	}
	if status >= http.StatusBadRequest {
		return webintel.Page{}, fmt.Errorf("native fetch %s: status %d", url, status)
	}
	return p.transformer.Transform(url, body)
}

func (p *NativeProvider) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("native fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("native visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("native response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
