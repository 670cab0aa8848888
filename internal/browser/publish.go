package browser

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/runner"
)

// clickByTextJS clicks the first button-like element whose trimmed text
// matches exactly. Returns whether anything was clicked.
const clickByTextJS = `((label) => {
	const els = [...document.querySelectorAll('div[role="button"],button')];
	const el = els.find(e => (e.textContent || "").trim() === label);
	if (el) { el.click(); return true; }
	return false;
})(%q)`

// Publish drives the upload flow: open composer, attach the transformed
// asset, advance through the crop and edit screens, type the caption, share.
func (c *Chrome) Publish(ctx context.Context, acct runner.Account, assetPath, caption string) error {
	abs, err := filepath.Abs(assetPath)
	if err != nil {
		return fmt.Errorf("resolve asset path: %w", err)
	}
	return c.withSession(ctx, acct, func(taskCtx context.Context) error {
		// The upload composer only renders the mobile layout reliably.
		if err := chromedp.Run(taskCtx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				return emulation.SetDeviceMetricsOverride(375, 812, 2, true).Do(ctx)
			}),
			chromedp.Navigate(baseURL(c.cfg.FeedURL)),
			chromedp.WaitReady("body", chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("open home: %w", err)
		}
		if err := c.checkLoggedIn(taskCtx, acct); err != nil {
			return err
		}
		c.humanPace(taskCtx)

		if err := c.openComposer(taskCtx); err != nil {
			c.snapshot(taskCtx, acct, "composer_failed")
			return err
		}
		if err := chromedp.Run(taskCtx,
			chromedp.WaitReady(`input[type="file"]`, chromedp.ByQuery),
			chromedp.SetUploadFiles(`input[type="file"]`, []string{abs}, chromedp.ByQuery),
			chromedp.Sleep(c.randomDuration(4*time.Second, 7*time.Second)),
		); err != nil {
			c.snapshot(taskCtx, acct, "attach_failed")
			return fmt.Errorf("attach asset: %w", err)
		}
		c.snapshot(taskCtx, acct, "asset_attached")

		// Interstitials vary per account state; each is best effort.
		c.clickText(taskCtx, "OK")
		c.clickText(taskCtx, "Original")

		for i := 0; i < 2; i++ {
			if !c.clickText(taskCtx, "Next") {
				break
			}
			_ = chromedp.Run(taskCtx, chromedp.Sleep(c.randomDuration(2*time.Second, 4*time.Second)))
		}

		if err := chromedp.Run(taskCtx,
			chromedp.WaitVisible(`div[aria-label="Write a caption..."]`, chromedp.ByQuery),
			chromedp.Click(`div[aria-label="Write a caption..."]`, chromedp.ByQuery),
			chromedp.SendKeys(`div[aria-label="Write a caption..."]`, caption, chromedp.ByQuery),
			chromedp.Sleep(c.randomDuration(time.Second, 2*time.Second)),
		); err != nil {
			c.snapshot(taskCtx, acct, "caption_failed")
			return fmt.Errorf("enter caption: %w", err)
		}
		c.snapshot(taskCtx, acct, "caption_entered")

		if !c.clickText(taskCtx, "Share") {
			c.snapshot(taskCtx, acct, "share_failed")
			return fmt.Errorf("share control not found")
		}
		// Give the upload time to complete before the browser is torn down.
		_ = chromedp.Run(taskCtx, chromedp.Sleep(c.cfg.SettleWait))
		c.snapshot(taskCtx, acct, "shared")
		c.logger.Info("asset published",
			zap.String("account", acct.Name),
			zap.String("asset", abs),
		)
		return nil
	})
}

// openComposer tries the labelled control first, then the text fallback the
// mobile layout shows.
func (c *Chrome) openComposer(ctx context.Context) error {
	err := chromedp.Run(ctx,
		chromedp.Click(`[aria-label="New post"]`, chromedp.ByQuery),
		chromedp.Sleep(c.randomDuration(time.Second, 2*time.Second)),
	)
	if err == nil {
		return nil
	}
	if c.clickText(ctx, "Post") {
		return nil
	}
	return fmt.Errorf("composer control not found: %w", err)
}

func (c *Chrome) clickText(ctx context.Context, label string) bool {
	var clicked bool
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(fmt.Sprintf(clickByTextJS, label), &clicked),
	); err != nil {
		return false
	}
	if clicked {
		_ = chromedp.Run(ctx, chromedp.Sleep(c.randomDuration(time.Second, 2*time.Second)))
	}
	return clicked
}

// baseURL strips the feed path so the upload flow starts from the home page.
func baseURL(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL
	}
	return u.Scheme + "://" + u.Host + "/"
}
