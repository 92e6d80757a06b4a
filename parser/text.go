package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Text returns the visible text of sel with every text node trimmed and the
// pieces joined by a single space.
func Text(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return NormalizeSpace(strings.Join(parts, " "))
}

// NormalizeSpace collapses runs of whitespace, including non-breaking spaces.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

func labelTextNode(doc *goquery.Document, label string) *goquery.Selection {
	return doc.Find("body, body *").Contents().FilterFunction(func(_ int, s *goquery.Selection) bool {
		n := s.Get(0)
		if n.Type != html.TextNode || !strings.Contains(n.Data, label) {
			return false
		}
		return n.Parent == nil || (n.Parent.Data != "script" && n.Parent.Data != "style")
	}).First()
}
