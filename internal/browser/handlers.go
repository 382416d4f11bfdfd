package browser

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pagerun/pagerun/internal/dispatch"
	"github.com/pagerun/pagerun/pkg/schema"
)

// Handlers returns the full set of browser action handlers bound to one
// session. Register them on a dispatch.Registry to wire the engine to a
// real browser.
func Handlers(s *Session) []dispatch.Handler {
	return []dispatch.Handler{
		&navigateHandler{s},
		&clickHandler{s},
		&fillHandler{s},
		&typeHandler{s},
		&waitHandler{s},
		&screenshotHandler{s},
		&extractTextHandler{s},
		&evaluateHandler{s},
	}
}

// timeoutMillis converts the request timeout to Playwright's millisecond
// float, or nil to keep the driver default.
func timeoutMillis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

type navigateHandler struct{ session *Session }

func (h *navigateHandler) Name() string { return "navigate" }
func (h *navigateHandler) Description() string {
	return "Navigate to a URL and wait for the page to load"
}

func (h *navigateHandler) Execute(_ context.Context, req dispatch.Request) (schema.Value, error) {
	page, err := h.session.Page()
	if err != nil {
		return schema.Value{}, err
	}

	url := req.Value.Text()
	if url == "" {
		url = req.Selector
	}
	if url == "" {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "navigate requires a url in value")
	}

	if _, err := page.Goto(url, playwright.PageGotoOptions{Timeout: timeoutMillis(req.Timeout)}); err != nil {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "navigation failed").WithCause(err)
	}
	return schema.StringValue(page.URL()), nil
}

type clickHandler struct{ session *Session }

func (h *clickHandler) Name() string        { return "click" }
func (h *clickHandler) Description() string { return "Click the element matching the selector" }

func (h *clickHandler) Execute(_ context.Context, req dispatch.Request) (schema.Value, error) {
	page, err := h.session.Page()
	if err != nil {
		return schema.Value{}, err
	}
	if req.Selector == "" {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "click requires a selector")
	}
	if err := page.Click(req.Selector, playwright.PageClickOptions{Timeout: timeoutMillis(req.Timeout)}); err != nil {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "click failed").WithCause(err)
	}
	return schema.StringValue(page.URL()), nil
}

type fillHandler struct{ session *Session }

func (h *fillHandler) Name() string { return "fill" }
func (h *fillHandler) Description() string {
	return "Replace the content of the input matching the selector"
}

func (h *fillHandler) Execute(_ context.Context, req dispatch.Request) (schema.Value, error) {
	page, err := h.session.Page()
	if err != nil {
		return schema.Value{}, err
	}
	if req.Selector == "" {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "fill requires a selector")
	}
	if err := page.Fill(req.Selector, req.Value.Text(), playwright.PageFillOptions{Timeout: timeoutMillis(req.Timeout)}); err != nil {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "fill failed").WithCause(err)
	}
	return schema.Value{}, nil
}

type typeHandler struct{ session *Session }

func (h *typeHandler) Name() string { return "type" }
func (h *typeHandler) Description() string {
	return "Type text into the element matching the selector, key by key"
}

func (h *typeHandler) Execute(_ context.Context, req dispatch.Request) (schema.Value, error) {
	page, err := h.session.Page()
	if err != nil {
		return schema.Value{}, err
	}
	if req.Selector == "" {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "type requires a selector")
	}
	if err := page.Type(req.Selector, req.Value.Text(), playwright.PageTypeOptions{Timeout: timeoutMillis(req.Timeout)}); err != nil {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "type failed").WithCause(err)
	}
	return schema.Value{}, nil
}

type waitHandler struct{ session *Session }

func (h *waitHandler) Name() string { return "wait" }
func (h *waitHandler) Description() string {
	return "Wait for the element matching the selector to become visible"
}

func (h *waitHandler) Execute(ctx context.Context, req dispatch.Request) (schema.Value, error) {
	// Without a selector this is a plain sleep; the value holds seconds.
	if req.Selector == "" {
		seconds, ok := req.Value.AsFloat()
		if !ok || seconds <= 0 {
			return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "wait requires a selector or a duration in seconds")
		}
		select {
		case <-ctx.Done():
			return schema.Value{}, ctx.Err()
		case <-time.After(time.Duration(seconds * float64(time.Second))):
			return schema.Value{}, nil
		}
	}

	page, err := h.session.Page()
	if err != nil {
		return schema.Value{}, err
	}
	state := playwright.WaitForSelectorStateVisible
	if _, err := page.WaitForSelector(req.Selector, playwright.PageWaitForSelectorOptions{
		State:   state,
		Timeout: timeoutMillis(req.Timeout),
	}); err != nil {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "wait failed").WithCause(err)
	}
	return schema.Value{}, nil
}

type screenshotHandler struct{ session *Session }

func (h *screenshotHandler) Name() string { return "screenshot" }
func (h *screenshotHandler) Description() string {
	return "Capture a full-page screenshot to the path given in value"
}

func (h *screenshotHandler) Execute(_ context.Context, req dispatch.Request) (schema.Value, error) {
	page, err := h.session.Page()
	if err != nil {
		return schema.Value{}, err
	}
	path := req.Value.Text()
	if path == "" {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "screenshot requires a file path in value")
	}
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "screenshot failed").WithCause(err)
	}
	return schema.StringValue(path), nil
}

type extractTextHandler struct{ session *Session }

func (h *extractTextHandler) Name() string { return "extract_text" }
func (h *extractTextHandler) Description() string {
	return "Extract the text content of the element matching the selector"
}

func (h *extractTextHandler) Execute(_ context.Context, req dispatch.Request) (schema.Value, error) {
	page, err := h.session.Page()
	if err != nil {
		return schema.Value{}, err
	}
	selector := req.Selector
	if selector == "" {
		selector = "body"
	}
	text, err := page.TextContent(selector, playwright.PageTextContentOptions{Timeout: timeoutMillis(req.Timeout)})
	if err != nil {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "text extraction failed").WithCause(err)
	}
	return schema.StringValue(text), nil
}

type evaluateHandler struct{ session *Session }

func (h *evaluateHandler) Name() string { return "evaluate" }
func (h *evaluateHandler) Description() string {
	return "Evaluate a JavaScript expression in the page and return its result"
}

func (h *evaluateHandler) Execute(_ context.Context, req dispatch.Request) (schema.Value, error) {
	page, err := h.session.Page()
	if err != nil {
		return schema.Value{}, err
	}
	code := req.Value.Text()
	if code == "" {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "evaluate requires JavaScript code in value")
	}
	result, err := page.Evaluate(code)
	if err != nil {
		return schema.Value{}, schema.NewError(schema.ErrCodeDispatch, "evaluate failed").WithCause(err)
	}
	return schema.FromAny(result), nil
}
