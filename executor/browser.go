package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/GoCodeAlone/webpilot/config"
	"github.com/GoCodeAlone/webpilot/task"
)

const (
	defaultScrollFraction = 0.6
	extractValueCap       = 10
	actionTimeout         = 10 * time.Second
)

// Browser is a rod-backed executor driving a shared headless browser. The
// browser is lazily launched on first use; pages are kept per task and tab.
type Browser struct {
	mu       sync.Mutex
	browser  *rod.Browser
	headless bool
	policy   config.Policy
	pages    map[string]*rod.Page // keyed by taskID + "/" + tabID
}

// NewBrowser creates a Browser executor. The underlying browser is not
// started until the first action needs a page.
func NewBrowser(headless bool, policy config.Policy) *Browser {
	return &Browser{
		headless: headless,
		policy:   policy,
		pages:    make(map[string]*rod.Page),
	}
}

// Execute implements Executor for the seven registered actions.
func (b *Browser) Execute(ctx context.Context, req Request) (*Result, error) {
	switch req.Action.Type {
	case "finish":
		return b.finish(req)
	case "navigate":
		return b.navigate(ctx, req)
	case "click":
		return b.click(ctx, req)
	case "type":
		return b.typeText(ctx, req)
	case "wait":
		return b.wait(ctx, req)
	case "scroll":
		return b.scroll(ctx, req)
	case "extract":
		return b.extract(ctx, req)
	default:
		return terminalError(fmt.Sprintf("Action %q is not supported by the browser executor.", req.Action.Type)), nil
	}
}

// Shutdown closes all pages and the browser itself.
func (b *Browser) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, p := range b.pages {
		_ = p.Close()
		delete(b.pages, key)
	}
	if b.browser != nil {
		err := b.browser.Close()
		b.browser = nil
		return err
	}
	return nil
}

// ReleaseTask closes every page opened for the given task.
func (b *Browser) ReleaseTask(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, p := range b.pages {
		if strings.HasPrefix(key, taskID+"/") {
			_ = p.Close()
			delete(b.pages, key)
		}
	}
}

// ensureBrowser starts the browser if it is not already running.
// Must be called with b.mu held.
func (b *Browser) ensureBrowser() error {
	if b.browser != nil {
		return nil
	}
	l := launcher.New().Headless(b.headless)
	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	b.browser = browser
	return nil
}

// page returns the page for the request's task and tab, creating it (and the
// browser) if needed.
func (b *Browser) page(req Request) (*rod.Page, error) {
	tabID := strParam(req.Action.Params, "tabId")
	if tabID == "" {
		tabID = "main"
	}
	key := req.Task.ID + "/" + tabID

	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pages[key]; ok {
		return p, nil
	}
	if err := b.ensureBrowser(); err != nil {
		return nil, err
	}
	p, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	b.pages[key] = p
	return p, nil
}

func (b *Browser) finish(req Request) (*Result, error) {
	return &Result{
		Observation: task.Observation{
			Result:  task.ResultSuccess,
			Message: "Task declared finished.",
		},
		DidTerminate: true,
		Summary:      strParam(req.Action.Params, "summary"),
	}, nil
}

func (b *Browser) navigate(ctx context.Context, req Request) (*Result, error) {
	url := strParam(req.Action.Params, "url")
	if b.policy.OriginBlocked(url) {
		return terminalError(fmt.Sprintf("Navigation to %q is blocked by safety policy.", url)), nil
	}

	p, err := b.page(req)
	if err != nil {
		return terminalError(fmt.Sprintf("No browser tab available: %v", err)), nil
	}
	p = p.Context(ctx).Timeout(actionTimeout)

	if err := p.Navigate(url); err != nil {
		return recoverableError(fmt.Sprintf("Navigation to %s failed: %v", url, err)), nil
	}
	if err := p.WaitLoad(); err != nil {
		return recoverableError(fmt.Sprintf("Page %s did not finish loading: %v", url, err)), nil
	}
	if waitFor := strParam(req.Action.Params, "waitFor"); waitFor != "" {
		if _, err := p.Element(waitFor); err != nil {
			return recoverableError(fmt.Sprintf("Navigated to %s but selector %q did not appear: %v", url, waitFor, err)), nil
		}
	}

	info, _ := p.Info()
	data := map[string]any{"url": url}
	if info != nil {
		data["title"] = info.Title
	}
	return &Result{Observation: task.Observation{
		Result:  task.ResultSuccess,
		Message: "Navigated to " + url,
		Data:    data,
	}}, nil
}

func (b *Browser) click(ctx context.Context, req Request) (*Result, error) {
	selector := strParam(req.Action.Params, "selector")
	if b.policy.SelectorRestricted(selector) {
		return terminalError(fmt.Sprintf("Selector %q is restricted by safety policy.", selector)), nil
	}

	p, err := b.page(req)
	if err != nil {
		return terminalError(fmt.Sprintf("No browser tab available: %v", err)), nil
	}
	p = p.Context(ctx).Timeout(actionTimeout)

	el, err := p.Element(selector)
	if err != nil {
		return recoverableError(fmt.Sprintf("Selector %q not found: %v", selector, err)), nil
	}

	button := proto.InputMouseButtonLeft
	switch strParam(req.Action.Params, "button") {
	case "right":
		button = proto.InputMouseButtonRight
	case "middle":
		button = proto.InputMouseButtonMiddle
	}
	if err := el.Click(button, 1); err != nil {
		return recoverableError(fmt.Sprintf("Click on %q failed: %v", selector, err)), nil
	}
	if boolParam(req.Action.Params, "waitForNavigation") {
		if err := p.WaitLoad(); err != nil {
			return recoverableError(fmt.Sprintf("Clicked %q but navigation did not settle: %v", selector, err)), nil
		}
	}

	return &Result{Observation: task.Observation{
		Result:  task.ResultSuccess,
		Message: "Clicked " + selector,
	}}, nil
}

func (b *Browser) typeText(ctx context.Context, req Request) (*Result, error) {
	selector := strParam(req.Action.Params, "selector")
	if b.policy.SelectorRestricted(selector) {
		return terminalError(fmt.Sprintf("Selector %q is restricted by safety policy.", selector)), nil
	}

	p, err := b.page(req)
	if err != nil {
		return terminalError(fmt.Sprintf("No browser tab available: %v", err)), nil
	}
	p = p.Context(ctx).Timeout(actionTimeout)

	el, err := p.Element(selector)
	if err != nil {
		return recoverableError(fmt.Sprintf("Selector %q not found: %v", selector, err)), nil
	}
	if boolParam(req.Action.Params, "clear") {
		if err := el.SelectAllText(); err == nil {
			_ = el.Input("")
		}
	}
	text := strParam(req.Action.Params, "text")
	if err := el.Input(text); err != nil {
		return recoverableError(fmt.Sprintf("Typing into %q failed: %v", selector, err)), nil
	}
	if boolParam(req.Action.Params, "submit") {
		if err := el.Type(input.Enter); err != nil {
			return recoverableError(fmt.Sprintf("Submit after typing into %q failed: %v", selector, err)), nil
		}
	}

	return &Result{Observation: task.Observation{
		Result:  task.ResultSuccess,
		Message: fmt.Sprintf("Typed %d characters into %s", len(text), selector),
	}}, nil
}

// wait prefers until over ms when both are supplied. Both the sleep and the
// polling deadline are clamped to the policy ceiling.
func (b *Browser) wait(ctx context.Context, req Request) (*Result, error) {
	until := strParam(req.Action.Params, "until")
	if until != "" {
		timeout := b.policy.ClampWait(intParam(req.Action.Params, "timeoutMs"))
		p, err := b.page(req)
		if err != nil {
			return terminalError(fmt.Sprintf("No browser tab available: %v", err)), nil
		}
		p = p.Context(ctx).Timeout(time.Duration(timeout) * time.Millisecond)
		if _, err := p.Element(until); err != nil {
			return recoverableError(fmt.Sprintf("Selector %q did not appear within %dms.", until, timeout)), nil
		}
		return &Result{Observation: task.Observation{
			Result:  task.ResultSuccess,
			Message: fmt.Sprintf("Selector %s appeared.", until),
		}}, nil
	}

	ms := b.policy.ClampWait(intParam(req.Action.Params, "ms"))
	select {
	case <-ctx.Done():
		return recoverableError("Wait canceled: " + ctx.Err().Error()), nil
	case <-time.After(time.Duration(ms) * time.Millisecond):
	}
	return &Result{Observation: task.Observation{
		Result:  task.ResultSuccess,
		Message: fmt.Sprintf("Waited %dms.", ms),
		Data:    map[string]any{"ms": ms},
	}}, nil
}

func (b *Browser) scroll(ctx context.Context, req Request) (*Result, error) {
	direction := strParam(req.Action.Params, "direction")
	p, err := b.page(req)
	if err != nil {
		return terminalError(fmt.Sprintf("No browser tab available: %v", err)), nil
	}
	p = p.Context(ctx).Timeout(actionTimeout)

	if selector := strParam(req.Action.Params, "selector"); selector != "" {
		el, err := p.Element(selector)
		if err != nil {
			return recoverableError(fmt.Sprintf("Selector %q not found: %v", selector, err)), nil
		}
		if err := el.ScrollIntoView(); err != nil {
			return recoverableError(fmt.Sprintf("Scrolling %q into view failed: %v", selector, err)), nil
		}
		return &Result{Observation: task.Observation{
			Result:  task.ResultSuccess,
			Message: "Scrolled " + selector + " into view.",
		}}, nil
	}

	var js string
	switch direction {
	case "top":
		js = `() => { window.scrollTo(0, 0); return window.scrollY; }`
	case "bottom":
		js = `() => { window.scrollTo(0, document.body.scrollHeight); return window.scrollY; }`
	case "up", "down":
		amount := floatParam(req.Action.Params, "amount")
		if amount <= 0 {
			amount = defaultScrollFraction
		}
		// Fractions scroll a share of the viewport; larger values are pixels.
		expr := fmt.Sprintf("window.innerHeight * %f", amount)
		if amount > 1 {
			expr = fmt.Sprintf("%f", amount)
		}
		sign := ""
		if direction == "up" {
			sign = "-"
		}
		js = fmt.Sprintf(`() => { window.scrollBy(0, %s(%s)); return window.scrollY; }`, sign, expr)
	default:
		return recoverableError(fmt.Sprintf("Unknown scroll direction %q.", direction)), nil
	}

	res, err := p.Eval(js)
	if err != nil {
		return recoverableError(fmt.Sprintf("Scroll %s failed: %v", direction, err)), nil
	}
	return &Result{Observation: task.Observation{
		Result:  task.ResultSuccess,
		Message: "Scrolled " + direction + ".",
		Data:    map[string]any{"scrollY": res.Value.Int()},
	}}, nil
}

func (b *Browser) extract(ctx context.Context, req Request) (*Result, error) {
	attribute := strParam(req.Action.Params, "attribute")
	selector := strParam(req.Action.Params, "selector")
	if selector == "" {
		selector = "*"
	}

	p, err := b.page(req)
	if err != nil {
		return terminalError(fmt.Sprintf("No browser tab available: %v", err)), nil
	}
	p = p.Context(ctx).Timeout(actionTimeout)

	els, err := p.Elements(selector)
	if err != nil {
		return recoverableError(fmt.Sprintf("Selector %q not found: %v", selector, err)), nil
	}

	var values []string
	for _, el := range els {
		if len(values) >= extractValueCap {
			break
		}
		var v string
		switch attribute {
		case "textContent":
			v, _ = el.Text()
		case "innerHTML":
			v, _ = el.HTML()
		default:
			if attr, err := el.Attribute(attribute); err == nil && attr != nil {
				v = *attr
			}
		}
		if strings.TrimSpace(v) != "" {
			values = append(values, v)
		}
	}

	data := map[string]any{
		"attribute": attribute,
		"selector":  selector,
		"values":    values,
	}
	if purpose := strParam(req.Action.Params, "purpose"); purpose != "" {
		data["purpose"] = purpose
	}
	return &Result{Observation: task.Observation{
		Result:  task.ResultSuccess,
		Message: fmt.Sprintf("Extracted %d value(s) of %s from %s", len(values), attribute, selector),
		Data:    data,
	}}, nil
}

func terminalError(msg string) *Result {
	return &Result{
		Observation:  task.Observation{Result: task.ResultError, Message: msg},
		DidTerminate: true,
	}
}

func recoverableError(msg string) *Result {
	return &Result{
		Observation: task.Observation{Result: task.ResultError, Message: msg},
	}
}

func strParam(params map[string]any, name string) string {
	if v, ok := params[name].(string); ok {
		return v
	}
	return ""
}

func boolParam(params map[string]any, name string) bool {
	if v, ok := params[name].(bool); ok {
		return v
	}
	return false
}

func intParam(params map[string]any, name string) int {
	switch v := params[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func floatParam(params map[string]any, name string) float64 {
	switch v := params[name].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
