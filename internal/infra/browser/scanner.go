package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
)

const (
	DefaultAxeScriptURL      = "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.10.2/axe.min.js"
	DefaultTimeout           = 60 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
	viewportWidth            = 1920
	viewportHeight           = 1080
)

// RuleTags are the axe-core tags every scan is restricted to.
var RuleTags = []string{"wcag2a", "wcag2aa", "wcag21a", "wcag21aa", "wcag22aa", "best-practice"}

type Options struct {
	// BrowserURL is a DevTools websocket of a shared Chromium. Empty starts a local headless one.
	BrowserURL        string
	ExecPath          string
	AxeScriptPath     string
	AxeScriptURL      string
	Timeout           time.Duration
	NavigationTimeout time.Duration
}

// Scanner implements audits.Scanner. Every Scan gets its own browser.
type Scanner struct {
	opts      Options
	axeSource string
}

func NewScanner(opts Options) (*Scanner, error) {
	if opts.AxeScriptURL == "" {
		opts.AxeScriptURL = DefaultAxeScriptURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	s := &Scanner{opts: opts}
	if opts.AxeScriptPath != "" {
		b, err := os.ReadFile(opts.AxeScriptPath)
		if err != nil {
			return nil, fmt.Errorf("read axe script: %w", err)
		}
		s.axeSource = string(b)
	}
	return s, nil
}

func (s *Scanner) Scan(ctx context.Context, url string) (domain.ScanOutput, error) {
	allocCtx, cancelAlloc := s.allocator(ctx)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, s.opts.Timeout)
	defer cancelTimeout()

	var title string
	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(viewportWidth, viewportHeight)); err != nil {
		return domain.ScanOutput{}, fmt.Errorf("start browser: %w", err)
	}

	// goto pakai timeout navigasi sendiri
	navCtx, cancelNav := context.WithTimeout(tabCtx, s.opts.NavigationTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(url))
	cancelNav()
	if err != nil {
		return domain.ScanOutput{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	loadedAt := time.Now().UTC()

	var location string
	if err := chromedp.Run(tabCtx, chromedp.Location(&location), chromedp.Title(&title)); err != nil {
		return domain.ScanOutput{}, fmt.Errorf("read title: %w", err)
	}
	if strings.TrimSpace(title) == "" {
		title = url
	}

	if err := s.injectAxe(tabCtx); err != nil {
		return domain.ScanOutput{}, err
	}

	var raw []byte
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(runScript(RuleTags), &raw, awaitPromise)); err != nil {
		return domain.ScanOutput{}, fmt.Errorf("run axe: %w", err)
	}

	findings, err := DecodeResults(raw)
	if err != nil {
		return domain.ScanOutput{}, err
	}

	return domain.ScanOutput{
		Title:    title,
		LoadedAt: loadedAt,
		Findings: findings,
		Raw:      raw,
		FinalURL: location,
	}, nil
}

func (s *Scanner) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.BrowserURL != "" {
		return chromedp.NewRemoteAllocator(ctx, s.opts.BrowserURL)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if s.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.ExecPath))
	}
	return chromedp.NewExecAllocator(ctx, opts...)
}

func (s *Scanner) injectAxe(ctx context.Context) error {
	var loaded bool
	if s.axeSource != "" {
		if err := chromedp.Run(ctx, chromedp.Evaluate(s.axeSource+"\n;typeof axe !== 'undefined'", &loaded)); err != nil {
			return fmt.Errorf("inject axe: %w", err)
		}
	} else {
		if err := chromedp.Run(ctx, chromedp.Evaluate(loadScript(s.opts.AxeScriptURL), &loaded, awaitPromise)); err != nil {
			return fmt.Errorf("inject axe from %s: %w", s.opts.AxeScriptURL, err)
		}
	}
	if !loaded {
		return fmt.Errorf("inject axe: axe is not defined after injection")
	}
	return nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func loadScript(src string) string {
	return fmt.Sprintf(`new Promise((resolve, reject) => {
	if (typeof axe !== 'undefined') { resolve(true); return; }
	const s = document.createElement('script');
	s.src = %q;
	s.onload = () => resolve(typeof axe !== 'undefined');
	s.onerror = () => reject(new Error('failed to load axe-core'));
	document.head.appendChild(s);
})`, src)
}

func runScript(tags []string) string {
	b, _ := json.Marshal(tags)
	return fmt.Sprintf(`axe.run(document, { runOnly: { type: 'tag', values: %s } })`, b)
}

type axeResults struct {
	URL        string       `json:"url"`
	Violations []axeFinding `json:"violations"`
}

type axeFinding struct {
	ID          string    `json:"id"`
	Impact      *string   `json:"impact"`
	Tags        []string  `json:"tags"`
	Description string    `json:"description"`
	Help        string    `json:"help"`
	HelpURL     string    `json:"helpUrl"`
	Nodes       []axeNode `json:"nodes"`
}

type axeNode struct {
	// string selector, or a list of selectors for shadow DOM / iframe hops
	Target         []json.RawMessage `json:"target"`
	HTML           string            `json:"html"`
	FailureSummary string            `json:"failureSummary"`
}

// DecodeResults pulls the violations out of an axe.run result object.
func DecodeResults(raw []byte) ([]domain.RawFinding, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode axe results: empty result")
	}
	var res axeResults
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode axe results: %w", err)
	}

	out := make([]domain.RawFinding, 0, len(res.Violations))
	for _, v := range res.Violations {
		f := domain.RawFinding{
			ID:          v.ID,
			Tags:        v.Tags,
			Description: v.Description,
			Help:        v.Help,
			HelpURL:     v.HelpURL,
		}
		if v.Impact != nil {
			f.Impact = *v.Impact
		}
		for _, n := range v.Nodes {
			f.Nodes = append(f.Nodes, domain.RawNode{
				Target:         flattenTarget(n.Target),
				HTML:           n.HTML,
				FailureSummary: n.FailureSummary,
			})
		}
		out = append(out, f)
	}
	return out, nil
}

func flattenTarget(parts []json.RawMessage) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		var sel string
		if err := json.Unmarshal(p, &sel); err == nil {
			out = append(out, sel)
			continue
		}
		var chain []string
		if err := json.Unmarshal(p, &chain); err == nil {
			out = append(out, strings.Join(chain, " >>> "))
		}
	}
	return out
}
