package fetchref

import (
	"context"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodFetcher uses a real headless browser to render JS-heavy civic
// sites before handing their post-render HTML to the rest of the
// pipeline. It launches and tears down a local Chromium instance per
// fetch; there is no shared browser pool.
type RodFetcher struct {
	Timeout time.Duration
}

// NewRodFetcher builds a RodFetcher that launches a local headless
// Chromium instance for each fetch.
func NewRodFetcher(timeout time.Duration) *RodFetcher {
	return &RodFetcher{Timeout: timeout}
}

func (r *RodFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	browser, err := newLocalBrowser(ctx, r.Timeout)
	if err != nil {
		return "", err
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return "", err
	}
	defer func() { _ = page.Close() }()

	if err := page.WaitLoad(); err != nil {
		return "", err
	}

	return page.HTML()
}

func newLocalBrowser(ctx context.Context, timeout time.Duration) (*rod.Browser, error) {
	var l *launcher.Launcher
	if path, has := launcher.LookPath(); has {
		l = launcher.New().Bin(path)
	} else {
		l = launcher.New()
	}
	l = l.Headless(true).NoSandbox(true)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx).Timeout(timeout)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, err
	}
	return browser, nil
}
