package rewriter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/andesco/chartless/pkg/ruleset"
)

// Mode selects how matched chart elements are suppressed.
type Mode string

const (
	ModeRemove Mode = "remove"
	ModeHide   Mode = "hide"
)

const (
	hideStyleID  = "quote-filter-style"
	noticeID     = "quote-filter-notice"
	hiddenAttr   = "data-filter-hidden"
	noticeStyles = "margin:0;padding:8px 12px;background:#fff3cd;color:#664d03;border-bottom:1px solid #ffe69c;font:14px/1.4 sans-serif;"
)

// TransformError is returned when a document cannot be parsed or rendered.
// No partial page is produced in that case.
type TransformError struct {
	Err error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed: %v", e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

type step func(doc *goquery.Document, origin string)

// Rewriter applies a fixed rule set to quote pages. It holds no per-request
// state and is safe for concurrent use.
type Rewriter struct {
	rules     *ruleset.RuleSet
	mode      Mode
	hardening bool

	selectors []goquery.Matcher
	strip     []goquery.Matcher
	keywords  []string
	roles     map[string]bool

	steps []step
}

// New compiles the rule set. Hardening only applies in ModeRemove.
func New(rules *ruleset.RuleSet, mode Mode, hardening bool) (*Rewriter, error) {
	if mode != ModeRemove && mode != ModeHide {
		return nil, fmt.Errorf("unknown filter mode %q", mode)
	}

	r := &Rewriter{
		rules:     rules,
		mode:      mode,
		hardening: hardening && mode == ModeRemove,
		roles:     make(map[string]bool, len(rules.ChartRoles)),
	}

	var err error
	if r.selectors, err = compileAll(rules.Selectors); err != nil {
		return nil, err
	}
	if r.strip, err = compileAll(rules.Strip); err != nil {
		return nil, err
	}
	for _, kw := range rules.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			r.keywords = append(r.keywords, kw)
		}
	}
	for _, role := range rules.ChartRoles {
		r.roles[strings.ToLower(role)] = true
	}

	r.steps = []step{r.ensureBaseHref, r.suppressCharts}
	if r.hardening {
		r.steps = append(r.steps, r.stripScripts)
	}
	r.steps = append(r.steps, r.injectNotice)

	return r, nil
}

func compileAll(selectors []string) ([]goquery.Matcher, error) {
	out := make([]goquery.Matcher, 0, len(selectors))
	for _, s := range selectors {
		sel, err := cascadia.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", s, err)
		}
		out = append(out, sel)
	}
	return out, nil
}

func (r *Rewriter) Mode() Mode      { return r.mode }
func (r *Rewriter) Hardening() bool { return r.hardening }

// Transform parses body leniently, runs every step in order and renders the
// result. The output depends only on body and origin.
func (r *Rewriter) Transform(body []byte, origin string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &TransformError{Err: fmt.Errorf("parse: %w", err)}
	}

	for _, s := range r.steps {
		s(doc, origin)
	}

	out, err := doc.Html()
	if err != nil {
		return nil, &TransformError{Err: fmt.Errorf("render: %w", err)}
	}
	return []byte(out), nil
}

// ensureBaseHref points relative asset URLs at the upstream origin.
func (r *Rewriter) ensureBaseHref(doc *goquery.Document, origin string) {
	if doc.Find("head base[href]").Length() > 0 {
		return
	}
	base := element(atom.Base, html.Attribute{Key: "href", Val: origin})

	if head := doc.Find("head").First(); head.Length() > 0 {
		head.PrependNodes(base)
		return
	}
	head := element(atom.Head)
	head.AppendChild(base)
	doc.Find("html").First().PrependNodes(head)
}

// suppressCharts removes matches, or in ModeHide marks them and always
// injects the stylesheet so charts rendered later by page scripts are
// hidden as well.
func (r *Rewriter) suppressCharts(doc *goquery.Document, _ string) {
	matched := r.findCharts(doc)

	if r.mode == ModeRemove {
		matched.Remove()
		return
	}

	matched.SetAttr(hiddenAttr, "true")
	r.injectHideStyle(doc)
}

// findCharts collects every element matched by a selector, a keyword on
// id/class/test attributes, or an svg that is labelled or nested as a chart.
func (r *Rewriter) findCharts(doc *goquery.Document) *goquery.Selection {
	var nodes []*html.Node

	for _, sel := range r.selectors {
		nodes = append(nodes, doc.FindMatcher(sel).Nodes...)
	}

	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if r.hasKeyword(s) {
			nodes = append(nodes, s.Nodes...)
		}
	})

	doc.Find("body svg").Each(func(_ int, s *goquery.Selection) {
		if r.isChartGraphic(s) {
			nodes = append(nodes, s.Nodes...)
		}
	})

	return doc.FindNodes(nodes...)
}

func (r *Rewriter) hasKeyword(s *goquery.Selection) bool {
	if r.attrHasKeyword(s, "id") || r.attrHasKeyword(s, "class") {
		return true
	}
	for _, attr := range r.rules.TestAttributes {
		if r.attrHasKeyword(s, attr) {
			return true
		}
	}
	return false
}

func (r *Rewriter) attrHasKeyword(s *goquery.Selection, attr string) bool {
	v, ok := s.Attr(attr)
	if !ok || v == "" {
		return false
	}
	v = strings.ToLower(v)
	for _, kw := range r.keywords {
		if strings.Contains(v, kw) {
			return true
		}
	}
	return false
}

func (r *Rewriter) isChartGraphic(svg *goquery.Selection) bool {
	if r.attrHasKeyword(svg, "aria-label") {
		return true
	}
	chartParents := svg.Parents().FilterFunction(func(_ int, p *goquery.Selection) bool {
		if a := p.Get(0).DataAtom; a == atom.Body || a == atom.Html {
			return false
		}
		if role, ok := p.Attr("role"); ok && r.roles[strings.ToLower(strings.TrimSpace(role))] {
			return true
		}
		return r.hasKeyword(p)
	})
	return chartParents.Length() > 0
}

func (r *Rewriter) injectHideStyle(doc *goquery.Document) {
	style := element(atom.Style, html.Attribute{Key: "id", Val: hideStyleID})
	style.AppendChild(&html.Node{Type: html.TextNode, Data: r.hideCSS()})

	if head := doc.Find("head").First(); head.Length() > 0 {
		head.AppendNodes(style)
		return
	}
	doc.Find("body").First().PrependNodes(style)
}

// hideCSS mirrors findCharts as static rules. Keyword rules are scoped to
// descendants of body so html and body never match.
func (r *Rewriter) hideCSS() string {
	var sels []string
	sels = append(sels, r.rules.Selectors...)
	for _, kw := range r.keywords {
		q := cssString(kw)
		sels = append(sels,
			`svg[aria-label*=`+q+` i]`,
			`body [id*=`+q+` i]`,
			`body [class*=`+q+` i]`,
		)
		for _, attr := range r.rules.TestAttributes {
			sels = append(sels, `body [`+attr+`*=`+q+` i]`)
		}
	}
	for _, role := range r.rules.ChartRoles {
		sels = append(sels, `body [role=`+cssString(strings.ToLower(role))+` i] svg`)
	}
	sels = append(sels, "["+hiddenAttr+"]")

	var css strings.Builder
	for _, sel := range sels {
		css.WriteString(sel + " { display: none !important; }\n")
	}
	for _, line := range r.rules.HideCSS {
		css.WriteString(line + "\n")
	}
	return strings.TrimSpace(css.String())
}

func cssString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// stripScripts keeps client code from re-rendering charts after load.
func (r *Rewriter) stripScripts(doc *goquery.Document, _ string) {
	for _, sel := range r.strip {
		doc.FindMatcher(sel).Remove()
	}
}

func (r *Rewriter) injectNotice(doc *goquery.Document, _ string) {
	body := doc.Find("body").First()
	if body.Length() == 0 || r.rules.Notice == "" {
		return
	}
	banner := element(atom.Div,
		html.Attribute{Key: "id", Val: noticeID},
		html.Attribute{Key: "role", Val: "status"},
		html.Attribute{Key: "style", Val: noticeStyles},
	)
	banner.AppendChild(&html.Node{Type: html.TextNode, Data: r.rules.Notice})
	body.PrependNodes(banner)
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}
