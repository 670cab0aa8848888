// Package browser drives the headless automation session used to acquire
// targets, harvest media responses, scrape captions, and run the upload flow.
// Every operation runs in a fresh browser so a leaked tab or bloated renderer
// never outlives one phase.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/runner"
)

// ErrLoginRequired indicates the session cookies no longer authenticate: the
// site served its login page instead of the account's feed.
var ErrLoginRequired = errors.New("login page detected, session cookies expired")

// Config controls session behavior.
type Config struct {
	UserAgent     string
	NavTimeout    time.Duration
	SettleWait    time.Duration
	FeedURL       string
	MinAssetBytes int64
}

// SnapshotSaver persists debug screenshots per pipeline step.
type SnapshotSaver interface {
	SaveSnapshot(account, step string, png []byte) (string, error)
}

// Chrome implements runner.Browser on headless Chrome via chromedp.
type Chrome struct {
	cfg       Config
	snapshots SnapshotSaver
	rng       *rand.Rand
	logger    *zap.Logger
}

// New builds a Chrome session driver.
func New(cfg Config, snapshots SnapshotSaver, rng *rand.Rand, logger *zap.Logger) *Chrome {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if cfg.SettleWait <= 0 {
		cfg.SettleWait = 15 * time.Second
	}
	return &Chrome{cfg: cfg, snapshots: snapshots, rng: rng, logger: logger}
}

// withSession launches a dedicated browser, injects the account's cookies,
// runs fn against the tab context, and tears the whole browser down.
func (c *Chrome) withSession(ctx context.Context, acct runner.Account, fn func(taskCtx context.Context) error) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("single-process", true),
		chromedp.UserAgent(c.cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	taskCtx, taskCancel := context.WithTimeout(tabCtx, c.cfg.NavTimeout)
	defer taskCancel()

	if err := chromedp.Run(taskCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(c.cfg.UserAgent),
		setCookiesAction(acct.Cookies),
	); err != nil {
		return fmt.Errorf("browser launch: %w", err)
	}

	return fn(taskCtx)
}

func setCookiesAction(cookies []runner.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := make([]*network.CookieParam, 0, len(cookies))
		for _, c := range cookies {
			p := &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
			}
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				p.Expires = &exp
			}
			switch c.SameSite {
			case "Strict":
				p.SameSite = network.CookieSameSiteStrict
			case "Lax":
				p.SameSite = network.CookieSameSiteLax
			case "None":
				p.SameSite = network.CookieSameSiteNone
			}
			params = append(params, p)
		}
		if err := storage.SetCookies(params).Do(ctx); err != nil {
			return fmt.Errorf("inject session cookies: %w", err)
		}
		return nil
	})
}

// loginMarkers identify the login page served when cookies are rejected.
const loginMarkersJS = `(() => {
	const selectors = [
		'input[name="username"]',
		'input[name="password"]',
	];
	return selectors.some(sel => document.querySelector(sel) !== null);
})()`

// checkLoggedIn fails with ErrLoginRequired when the login page is showing,
// and dismisses the "Not Now" interstitial when present.
func (c *Chrome) checkLoggedIn(ctx context.Context, acct runner.Account) error {
	var loginPage bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(loginMarkersJS, &loginPage)); err != nil {
		return fmt.Errorf("probe login page: %w", err)
	}
	if loginPage {
		c.snapshot(ctx, acct, "login_page_detected")
		return ErrLoginRequired
	}
	// Best effort: the "Not Now" dialog blocks clicks when left open.
	_ = chromedp.Run(ctx, chromedp.Evaluate(
		`(() => { const el = [...document.querySelectorAll('div[role="button"],button')]
			.find(b => b.textContent.trim() === 'Not Now'); if (el) el.click(); })()`, nil))
	return nil
}

// snapshot captures a full-page screenshot; failures are logged, never fatal.
func (c *Chrome) snapshot(ctx context.Context, acct runner.Account, step string) {
	if c.snapshots == nil {
		return
	}
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 80)); err != nil {
		c.logger.Warn("screenshot failed",
			zap.String("account", acct.Name),
			zap.String("step", step),
			zap.Error(err),
		)
		return
	}
	if _, err := c.snapshots.SaveSnapshot(acct.Name, step, buf); err != nil {
		c.logger.Warn("screenshot save failed",
			zap.String("account", acct.Name),
			zap.String("step", step),
			zap.Error(err),
		)
	}
}

// humanPace scrolls and idles like a person skimming the feed. Sites profile
// session behavior, so uploads straight after navigation stand out.
func (c *Chrome) humanPace(ctx context.Context) {
	scrolls := 1 + c.rng.Intn(3)
	for i := 0; i < scrolls; i++ {
		distance := 200 + c.rng.Intn(401)
		_ = chromedp.Run(ctx,
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", distance), nil),
			chromedp.Sleep(c.randomDuration(time.Second, 3*time.Second)),
		)
	}
	_ = chromedp.Run(ctx, chromedp.Sleep(c.randomDuration(500*time.Millisecond, 1500*time.Millisecond)))
}

func (c *Chrome) randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(c.rng.Int63n(int64(max-min)))
}
