package toolchain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/meysamhadeli/codgrade/grader/contracts"
)

// HTTPFetcher downloads hidden test files. Sources may be http(s) URLs,
// file:// URLs or plain local paths.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

var _ contracts.IFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{}, Timeout: timeout}
}

// Fetch copies the content of source into dest.
func (f *HTTPFetcher) Fetch(ctx context.Context, source string, dest io.Writer) error {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// No scheme, or a Windows drive letter.
		return copyFile(source, dest)
	}

	switch u.Scheme {
	case "file":
		return copyFile(u.Path, dest)
	case "http", "https":
	default:
		return fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error downloading %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error downloading %s: status %s", source, resp.Status)
	}
	if _, err := io.Copy(dest, resp.Body); err != nil {
		return fmt.Errorf("error reading %s: %w", source, err)
	}
	return nil
}

func copyFile(path string, dest io.Writer) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}
	defer src.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	return nil
}
