package fetcher

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// sourceFile is one downloadable entry from the source's directory index.
type sourceFile struct {
	Name string
	URL  string
}

// parseListing extracts file links from the source's directory-index page.
// Directory links, query links, and parent-directory links are skipped.
func parseListing(base *url.URL, r io.Reader) ([]sourceFile, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing directory index: %w", err)
	}

	var files []sourceFile
	seen := map[string]bool{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attrVal(n, "href"); keepHref(href) {
				ref, err := url.Parse(href)
				if err == nil {
					resolved := base.ResolveReference(ref)
					name := path.Base(resolved.Path)
					if name != "" && name != "." && !seen[name] {
						seen[name] = true
						files = append(files, sourceFile{Name: name, URL: resolved.String()})
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return files, nil
}

func keepHref(href string) bool {
	return href != "" && !strings.HasSuffix(href, "/") && !strings.HasPrefix(href, "?")
}

func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
