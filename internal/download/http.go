// Package download streams harvested media assets to local files.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/runner"
)

const copyChunkBytes = 8 * 1024

// Client downloads assets over HTTP using the headers the origin handed out
// with the harvested response.
type Client struct {
	client   *http.Client
	minBytes int64
	logger   *zap.Logger
}

// New builds a Client. Bodies smaller than minBytes are rejected as
// truncated or placeholder responses.
func New(timeout time.Duration, minBytes int64, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		client:   &http.Client{Timeout: timeout},
		minBytes: minBytes,
		logger:   logger,
	}
}

// Fetch streams src to destPath. The partial file is removed on any failure.
func (c *Client) Fetch(ctx context.Context, src runner.AssetSource, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return fmt.Errorf("build asset request: %w", err)
	}
	for key, value := range src.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch asset: HTTP status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create asset file %s: %w", destPath, err)
	}

	written, err := io.CopyBuffer(out, resp.Body, make([]byte, copyChunkBytes))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("write asset file %s: %w", destPath, err)
	}
	if written < c.minBytes {
		os.Remove(destPath)
		return fmt.Errorf("asset too small: %d bytes (minimum %d)", written, c.minBytes)
	}

	c.logger.Info("asset downloaded",
		zap.String("path", destPath),
		zap.Int64("bytes", written),
	)
	return nil
}
