package mediacache

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/hashicorp/go-cleanhttp"
)

const fallbackContentType = "application/octet-stream"

// Asset is a downloaded media body.
type Asset struct {
	Data        []byte
	ContentType string
}

// Fetcher downloads remote media.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Asset, error)
}

type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Asset{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Asset{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Asset{}, fmt.Errorf("media fetch status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return Asset{}, fmt.Errorf("read media body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return Asset{}, fmt.Errorf("media larger than %d bytes", f.maxBytes)
	}
	return Asset{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// DetectContentType prefers magic-number sniffing, then the server header,
// then the key's extension.
func DetectContentType(data []byte, header string, key string) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if header != "" {
		if mediaType, _, err := mime.ParseMediaType(header); err == nil && mediaType != fallbackContentType {
			return header
		}
	}
	if byExt := mime.TypeByExtension(path.Ext(key)); byExt != "" {
		return byExt
	}
	return fallbackContentType
}
