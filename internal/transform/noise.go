package transform

import (
	"strings"

	"golang.org/x/net/html"
)

// noiseTags are elements removed wholesale: they never carry article
// content worth converting.
var noiseTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
	"svg":      true,
	"canvas":   true,
	"nav":      true,
	"aside":    true,
	"form":     true,
	"dialog":   true,
}

// defaultNoiseTokens flag boilerplate chrome by id/class substring.
var defaultNoiseTokens = []string{
	"cookie",
	"consent",
	"gdpr",
	"banner",
	"popup",
	"modal",
	"overlay",
	"advert",
	"sponsor",
	"promo",
	"sidebar",
	"breadcrumb",
	"share",
	"social",
	"subscribe",
	"newsletter",
	"related-posts",
	"comments",
}

// noiseRemover strips navigation, chrome and tracking elements from a
// parsed document before markdown conversion.
type noiseRemover struct {
	tokens    []string
	selectors []selector
}

// selector is a parsed extra selector: "#id", ".class" or a bare tag.
type selector struct {
	kind  byte // '#', '.' or 't'
	value string
}

func newNoiseRemover(extraTokens, extraSelectors []string) *noiseRemover {
	r := &noiseRemover{tokens: defaultNoiseTokens}
	for _, token := range extraTokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" {
			r.tokens = append(r.tokens, token)
		}
	}
	for _, raw := range extraSelectors {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		switch raw[0] {
		case '#':
			r.selectors = append(r.selectors, selector{kind: '#', value: raw[1:]})
		case '.':
			r.selectors = append(r.selectors, selector{kind: '.', value: raw[1:]})
		default:
			r.selectors = append(r.selectors, selector{kind: 't', value: raw})
		}
	}
	return r
}

// strip removes noise elements under root and returns how many were cut.
func (r *noiseRemover) strip(root *html.Node) int {
	var toRemove []*html.Node

	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && r.matches(n) {
			toRemove = append(toRemove, n)
			return // children go with the parent
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(root)

	return removeNodes(toRemove)
}

func (r *noiseRemover) matches(n *html.Node) bool {
	tag := strings.ToLower(n.Data)
	if noiseTags[tag] {
		return true
	}
	// header/footer count as chrome only at the page level, not inside
	// articles or sections.
	if (tag == "header" || tag == "footer") && !insideContent(n) {
		return true
	}

	id := strings.ToLower(getAttr(n, "id"))
	class := strings.ToLower(getAttr(n, "class"))
	for _, token := range r.tokens {
		if strings.Contains(id, token) || strings.Contains(class, token) {
			return true
		}
	}

	for _, sel := range r.selectors {
		switch sel.kind {
		case '#':
			if id == sel.value {
				return true
			}
		case '.':
			if hasClass(class, sel.value) {
				return true
			}
		case 't':
			if tag == sel.value {
				return true
			}
		}
	}
	return false
}

func hasClass(classAttr, name string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == name {
			return true
		}
	}
	return false
}

func insideContent(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch strings.ToLower(p.Data) {
		case "article", "main", "section":
			return true
		}
	}
	return false
}
