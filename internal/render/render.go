// Package render turns the HTML body of an alert email into the short
// caption and deep link sent to chat.
package render

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result is the rendered form of an alert body
type Result struct {
	Summary string
	Link    string
}

// Renderer extracts the alert summary and link. Links pointing at
// InternalHost are rewritten to PublicHost.
type Renderer struct {
	InternalHost string
	PublicHost   string
}

// New returns a renderer rewriting internalHost to publicHost
func New(internalHost, publicHost string) *Renderer {
	return &Renderer{InternalHost: internalHost, PublicHost: publicHost}
}

// Render parses body and returns the text of its first <div>, with
// surrounding whitespace trimmed, and the href of its first <a>. Each is
// empty when the element is missing.
func (r *Renderer) Render(body string) (Result, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse alert html: %w", err)
	}

	var res Result

	if div := findFirst(doc, atom.Div); div != nil {
		res.Summary = strings.TrimSpace(textContent(div))
	}

	if a := findFirst(doc, atom.A); a != nil {
		res.Link = r.rewrite(attr(a, "href"))
	}

	return res, nil
}

func (r *Renderer) rewrite(link string) string {
	if link == "" || r.InternalHost == "" {
		return link
	}
	return strings.ReplaceAll(link, r.InternalHost, r.PublicHost)
}

// findFirst returns the first element of the given type in document order
func findFirst(n *html.Node, tag atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
