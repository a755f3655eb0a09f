// Package links extracts orbit file links from HTML directory listings.
package links

import (
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// FindEOFLinks returns the href of every anchor pointing at a .EOF file, in
// document order. Hrefs with a path component are reduced to the base name.
func FindEOFLinks(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []string
	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				name := path.Base(strings.TrimSpace(attr.Val))
				if strings.HasSuffix(name, ".EOF") && !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return out, nil
}
