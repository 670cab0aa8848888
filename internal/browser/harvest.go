package browser

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/runner"
)

// AcquireTarget opens the account's feed and resolves the first playable
// post to its canonical permalink.
func (c *Chrome) AcquireTarget(ctx context.Context, acct runner.Account) (string, error) {
	var target string
	err := c.withSession(ctx, acct, func(taskCtx context.Context) error {
		if err := chromedp.Run(taskCtx,
			chromedp.Navigate(c.cfg.FeedURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("open feed: %w", err)
		}
		c.snapshot(taskCtx, acct, "feed_loaded")
		if err := c.checkLoggedIn(taskCtx, acct); err != nil {
			return err
		}
		if err := chromedp.Run(taskCtx,
			chromedp.WaitVisible("video", chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("wait for playable post: %w", err)
		}
		var current string
		if err := chromedp.Run(taskCtx, chromedp.Location(&current)); err != nil {
			return fmt.Errorf("read feed location: %w", err)
		}
		target = canonicalTarget(current)
		if target == "" {
			return fmt.Errorf("feed location %q is not a post permalink", current)
		}
		c.logger.Info("target acquired",
			zap.String("account", acct.Name),
			zap.String("target", target),
		)
		return nil
	})
	return target, err
}

// canonicalTarget rewrites a feed-player URL to its shareable permalink form.
// Returns "" when the URL does not identify a single post.
func canonicalTarget(current string) string {
	u, err := url.Parse(current)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	u.Path = strings.Replace(u.Path, "/reels/", "/reel/", 1)
	const marker = "/reel/"
	i := strings.Index(u.Path, marker)
	if i < 0 {
		return ""
	}
	// A bare listing path carries no post ID and is not a permalink.
	if strings.Trim(u.Path[i+len(marker):], "/") == "" {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// HarvestAsset plays the target post and observes network responses for the
// media file, returning the largest qualifying candidate plus the headers a
// plain HTTP client needs to fetch it.
func (c *Chrome) HarvestAsset(ctx context.Context, acct runner.Account, targetURL string) (runner.AssetSource, error) {
	var picked runner.AssetSource
	err := c.withSession(ctx, acct, func(taskCtx context.Context) error {
		var (
			mu         sync.Mutex
			candidates []runner.AssetSource
		)
		chromedp.ListenTarget(taskCtx, func(ev interface{}) {
			resp, ok := ev.(*network.EventResponseReceived)
			if !ok {
				return
			}
			size := headerContentLength(resp.Response.Headers)
			if !isAssetCandidate(resp.Response.URL, size, c.cfg.MinAssetBytes) {
				return
			}
			mu.Lock()
			candidates = append(candidates, runner.AssetSource{URL: resp.Response.URL, Size: size})
			mu.Unlock()
		})

		if err := chromedp.Run(taskCtx,
			chromedp.Navigate(targetURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("open target: %w", err)
		}
		if err := c.checkLoggedIn(taskCtx, acct); err != nil {
			return err
		}
		// Nudge playback so the player requests the full media file.
		_ = chromedp.Run(taskCtx, chromedp.Click("video", chromedp.ByQuery))
		c.humanPace(taskCtx)
		_ = chromedp.Run(taskCtx, chromedp.Sleep(c.cfg.SettleWait))
		c.snapshot(taskCtx, acct, "asset_settled")

		mu.Lock()
		best := pickLargest(candidates)
		mu.Unlock()
		if best.URL == "" {
			return fmt.Errorf("no media response of at least %d bytes observed", c.cfg.MinAssetBytes)
		}
		best.Headers = c.fetchHeaders(targetURL)
		picked = best
		c.logger.Info("asset harvested",
			zap.String("account", acct.Name),
			zap.String("url", best.URL),
			zap.Int64("bytes", best.Size),
		)
		return nil
	})
	return picked, err
}

// isAssetCandidate applies the media response filter: https, an .mp4 path,
// no byte-range fragment streams, and at least min bytes.
func isAssetCandidate(rawURL string, size, min int64) bool {
	if !strings.HasPrefix(rawURL, "https://") {
		return false
	}
	if !strings.Contains(rawURL, ".mp4") {
		return false
	}
	if strings.Contains(rawURL, "bytestart") {
		return false
	}
	return size >= min
}

func pickLargest(candidates []runner.AssetSource) runner.AssetSource {
	var best runner.AssetSource
	for _, c := range candidates {
		if c.Size > best.Size {
			best = c
		}
	}
	return best
}

// headerContentLength reads Content-Length from a devtools header map, which
// carries values as untyped JSON.
func headerContentLength(headers network.Headers) int64 {
	for k, v := range headers {
		if !strings.EqualFold(k, "content-length") {
			continue
		}
		switch t := v.(type) {
		case string:
			n, err := strconv.ParseInt(t, 10, 64)
			if err == nil {
				return n
			}
		case float64:
			return int64(t)
		}
	}
	return 0
}

// fetchHeaders are sent by the plain HTTP downloader so the CDN serves the
// same bytes it served the browser.
func (c *Chrome) fetchHeaders(targetURL string) map[string]string {
	h := map[string]string{
		"User-Agent":      c.cfg.UserAgent,
		"Accept":          "video/mp4,video/*;q=0.9,*/*;q=0.8",
		"Accept-Encoding": "identity",
		"Referer":         targetURL,
	}
	if u, err := url.Parse(targetURL); err == nil && u.Host != "" {
		h["Origin"] = u.Scheme + "://" + u.Host
	}
	return h
}

// captionJS scores caption-bearing spans by text length plus a strong bonus
// per embedded hashtag anchor, and returns the best block with its tags.
const captionJS = `(() => {
	const spans = document.querySelectorAll('span[dir="auto"]');
	let best = "";
	let bestScore = 0;
	for (const span of spans) {
		const text = (span.innerText || "").trim();
		if (!text) continue;
		const tags = Array.from(span.querySelectorAll("a"))
			.map(a => (a.textContent || "").trim())
			.filter(t => t.startsWith("#"));
		const score = text.length + 10 * tags.length;
		if (score > bestScore) {
			bestScore = score;
			best = tags.length ? text + "\n\n" + tags.join(" ") : text;
		}
	}
	return best;
})()`

// ExtractCaption scrapes the author caption from the target post. An empty
// result is not an error: callers fall back to a neutral caption.
func (c *Chrome) ExtractCaption(ctx context.Context, acct runner.Account, targetURL string) (string, error) {
	var caption string
	err := c.withSession(ctx, acct, func(taskCtx context.Context) error {
		if err := chromedp.Run(taskCtx,
			chromedp.Navigate(targetURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(3*time.Second),
		); err != nil {
			return fmt.Errorf("open target for caption: %w", err)
		}
		if err := c.checkLoggedIn(taskCtx, acct); err != nil {
			return err
		}
		if err := chromedp.Run(taskCtx, chromedp.Evaluate(captionJS, &caption)); err != nil {
			return fmt.Errorf("scrape caption: %w", err)
		}
		c.snapshot(taskCtx, acct, "caption_scraped")
		c.logger.Debug("caption extracted",
			zap.String("account", acct.Name),
			zap.Int("length", len(caption)),
		)
		return nil
	})
	return caption, err
}
