// Package browser provides Playwright-backed action handlers. The engine
// only sees the dispatch interfaces; everything Playwright lives here.
package browser

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/playwright-community/playwright-go"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
)

// Options configures a browser session.
type Options struct {
	// Headless runs the browser without a visible window.
	Headless bool

	// StorageStatePath, when set, restores cookies and local storage from
	// this file on start and saves them back on close, so authenticated
	// sessions survive restarts.
	StorageStatePath string

	ViewportWidth  int
	ViewportHeight int
}

// Session owns one Playwright browser, context and page. The session is
// started lazily on first use so commands that never dispatch an action
// (validate, actions) do not launch a browser.
type Session struct {
	opts Options

	mu      sync.Mutex
	started bool

	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

// NewSession creates an unstarted Session.
func NewSession(opts Options) *Session {
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = defaultViewportWidth
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = defaultViewportHeight
	}
	return &Session{opts: opts}
}

// Page returns the session page, starting the browser if needed.
func (s *Session) Page() (playwright.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return s.page, nil
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s.page, nil
}

// start launches Playwright and opens a page. Caller holds s.mu.
func (s *Session) start() error {
	// Install quietly so driver download output does not mix with logs.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  s.opts.ViewportWidth,
			Height: s.opts.ViewportHeight,
		},
	}
	if s.opts.StorageStatePath != "" {
		if _, err := os.Stat(s.opts.StorageStatePath); err == nil {
			contextOpts.StorageStatePath = playwright.String(s.opts.StorageStatePath)
		}
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		pw.Stop()
		return fmt.Errorf("create page: %w", err)
	}

	s.pw = pw
	s.browser = browser
	s.context = context
	s.page = page
	s.started = true
	return nil
}

// Close saves the storage state if configured and tears down the browser.
// Closing an unstarted session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	var saveErr error
	if s.opts.StorageStatePath != "" {
		if _, err := s.context.StorageState(s.opts.StorageStatePath); err != nil {
			saveErr = fmt.Errorf("save storage state: %w", err)
		}
	}

	_ = s.page.Close()
	_ = s.context.Close()
	_ = s.browser.Close()
	if err := s.pw.Stop(); err != nil && saveErr == nil {
		saveErr = fmt.Errorf("stop playwright: %w", err)
	}
	return saveErr
}
