package browsertest

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/crud-e2e/internal/artifacts"
	"github.com/kuitang/crud-e2e/internal/logutil"
	"github.com/kuitang/crud-e2e/internal/obs"
)

// artifactUploadTimeout bounds the failure artifact uploads of one test.
const artifactUploadTimeout = 30 * time.Second

// Fixture is one test's isolated browser context and page.
type Fixture struct {
	T       testing.TB
	Context playwright.BrowserContext
	Page    playwright.Page

	suite  *Suite
	ctx    context.Context
	logger *slog.Logger

	closeOnce sync.Once
}

// NewFixture opens a fresh browser context and page for t. Both are closed
// when t finishes; if t failed, a screenshot and the page HTML are saved
// first.
func (s *Suite) NewFixture(t testing.TB) *Fixture {
	t.Helper()

	bctx, err := s.browser.NewContext()
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	timeout := timeoutMS(s.cfg)
	bctx.SetDefaultTimeout(timeout)
	bctx.SetDefaultNavigationTimeout(timeout)

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		t.Fatalf("could not create page: %v", err)
	}

	ctx := obs.WithTest(context.Background(), s.Name, t.Name())
	f := &Fixture{
		T:       t,
		Context: bctx,
		Page:    page,
		suite:   s,
		ctx:     ctx,
		logger:  obs.From(ctx).With("pkg", "browsertest"),
	}
	t.Cleanup(f.Close)
	f.logger.Debug("fixture opened")
	return f
}

// Close saves failure artifacts if the test has failed, then closes the
// page and its context. Safe to call before the test ends.
func (f *Fixture) Close() {
	f.closeOnce.Do(func() {
		if f.T.Failed() {
			f.saveArtifacts()
		}
		if err := f.Page.Close(); err != nil {
			f.logger.Warn("page close failed", "error", err)
		}
		if err := f.Context.Close(); err != nil {
			f.logger.Warn("context close failed", "error", err)
		}
		f.logger.Debug("fixture closed", "failed", f.T.Failed())
	})
}

func (f *Fixture) saveArtifacts() {
	ctx, cancel := context.WithTimeout(f.ctx, artifactUploadTimeout)
	defer cancel()

	runID := f.suite.cfg.RunID
	if shot, err := f.Page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)}); err != nil {
		f.logger.Warn("screenshot failed", "error", err)
	} else {
		f.upload(ctx, artifacts.Key(runID, f.T.Name(), "screenshot.png"), shot, "image/png")
	}

	if html, err := f.Page.Content(); err != nil {
		f.logger.Warn("page content failed", "error", err)
	} else {
		f.upload(ctx, artifacts.Key(runID, f.T.Name(), "page.html"), []byte(html), "text/html; charset=utf-8")
	}
}

func (f *Fixture) upload(ctx context.Context, key string, body []byte, contentType string) {
	loc, err := f.suite.store.Upload(ctx, key, body, contentType)
	if err != nil {
		f.logger.Warn("artifact upload failed", "key", key, "error", err)
	}
	if loc != "" {
		f.T.Logf("artifact saved: %s", loc)
	}
}

// URL resolves a path against the suite's base URL.
func (f *Fixture) URL(path string) string {
	return f.suite.BaseURL + path
}

// fail reports the current page along with the failure, like
// WaitForSelector always has.
func (f *Fixture) fail(format string, args ...any) {
	f.T.Helper()
	title, _ := f.Page.Title()
	f.T.Logf("Current URL: %s", f.Page.URL())
	f.T.Logf("Current title: %s", title)
	if content, err := f.Page.Content(); err == nil {
		f.T.Logf("Content preview: %s", logutil.Truncate(content, 500))
	}
	f.T.Fatalf(format, args...)
}

// =============================================================================
// Navigation and interaction
// =============================================================================

// Goto navigates to a path on the target and waits for DOMContentLoaded.
func (f *Fixture) Goto(path string) {
	f.T.Helper()

	_, err := f.Page.Goto(f.URL(path), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		f.fail("Failed to navigate to %s: %v", path, err)
	}
}

// Click clicks the first element matching selector.
func (f *Fixture) Click(selector string) {
	f.T.Helper()

	if err := f.Page.Locator(selector).First().Click(); err != nil {
		f.fail("Failed to click %s: %v", selector, err)
	}
}

// ClickFunc returns an action clicking selector, for ExpectJSONResponse.
func (f *Fixture) ClickFunc(selector string) func() error {
	return func() error {
		return f.Page.Locator(selector).First().Click()
	}
}

// WaitForSelector waits for the first element matching selector to be
// visible and returns its locator.
func (f *Fixture) WaitForSelector(selector string) playwright.Locator {
	f.T.Helper()

	first := f.Page.Locator(selector).First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	})
	if err != nil {
		f.fail("Failed to wait for selector %s: %v", selector, err)
	}
	return first
}

// WaitForAny waits until an element matching one of selectors is visible
// and returns the index of the first selector that matches.
func (f *Fixture) WaitForAny(selectors ...string) int {
	f.T.Helper()

	combined := f.Page.Locator(selectors[0])
	for _, sel := range selectors[1:] {
		combined = combined.Or(f.Page.Locator(sel))
	}
	err := combined.First().WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	})
	if err != nil {
		f.fail("Failed to wait for any of %v: %v", selectors, err)
	}
	for i, sel := range selectors {
		if visible, _ := f.Page.Locator(sel).First().IsVisible(); visible {
			return i
		}
	}
	f.fail("none of %v visible after wait", selectors)
	return -1
}

// TextOf returns the inner text of the first element matching selector.
func (f *Fixture) TextOf(selector string) string {
	f.T.Helper()

	text, err := f.Page.Locator(selector).First().InnerText()
	if err != nil {
		f.fail("Failed to read text of %s: %v", selector, err)
	}
	return text
}

// Fill fills the first element matching selector. A comma-separated
// selector union fills whichever alternative appears first in the page.
func (f *Fixture) Fill(selector, value string) {
	f.T.Helper()

	if err := f.Page.Locator(selector).First().Fill(value); err != nil {
		f.fail("Failed to fill %s: %v", selector, err)
	}
}

// FillFirst fills the first element matching any of selectors.
func (f *Fixture) FillFirst(selectors []string, value string) {
	f.T.Helper()
	f.Fill(joinSelectors(selectors), value)
}

// FillNth fills the i-th input (zero-based) of the form matching
// formSelector.
func (f *Fixture) FillNth(formSelector string, i int, value string) {
	f.T.Helper()

	input := f.Page.Locator(formSelector).First().Locator("input").Nth(i)
	if err := input.Fill(value); err != nil {
		f.fail("Failed to fill input %d of %s: %v", i, formSelector, err)
	}
}

// Submit clicks the submit control of the first form on the page.
func (f *Fixture) Submit() {
	f.T.Helper()
	f.Click(`form [type="submit"]`)
}

// AcceptDialogs accepts every confirm, alert and prompt dialog from now on.
func (f *Fixture) AcceptDialogs() {
	f.Page.OnDialog(func(dialog playwright.Dialog) {
		f.logger.Debug("dialog accepted", "type", dialog.Type(), "message", logutil.Truncate(dialog.Message(), 200))
		if err := dialog.Accept(); err != nil {
			f.logger.Warn("dialog accept failed", "error", err)
		}
	})
}

// =============================================================================
// Assertions
// =============================================================================

// ExpectURL asserts the page URL equals the target's base URL plus path.
func (f *Fixture) ExpectURL(path string) {
	f.T.Helper()

	want := f.URL(path)
	if err := f.suite.expect.Page(f.Page).ToHaveURL(want); err != nil {
		f.fail("expected URL %s, got %s: %v", want, f.Page.URL(), err)
	}
}

// ExpectVisible asserts the element matching selector is visible.
func (f *Fixture) ExpectVisible(selector string) {
	f.T.Helper()

	if err := f.suite.expect.Locator(f.Page.Locator(selector)).ToBeVisible(); err != nil {
		f.fail("expected %s to be visible: %v", selector, err)
	}
}

// ExpectHidden asserts no element matching selector is visible.
func (f *Fixture) ExpectHidden(selector string) {
	f.T.Helper()

	if err := f.suite.expect.Locator(f.Page.Locator(selector)).ToBeHidden(); err != nil {
		f.fail("expected %s to be hidden: %v", selector, err)
	}
}

// ExpectCount asserts exactly n elements match selector.
func (f *Fixture) ExpectCount(selector string, n int) {
	f.T.Helper()

	if err := f.suite.expect.Locator(f.Page.Locator(selector)).ToHaveCount(n); err != nil {
		got, _ := f.Page.Locator(selector).Count()
		f.fail("expected %d of %s, got %d: %v", n, selector, got, err)
	}
}

// ExpectText asserts an element whose whole text is text is visible.
func (f *Fixture) ExpectText(text string) {
	f.T.Helper()

	if err := f.suite.expect.Locator(f.Page.Locator(TextSelector(text)).First()).ToBeVisible(); err != nil {
		f.fail("expected text %q to be visible: %v", text, err)
	}
}
