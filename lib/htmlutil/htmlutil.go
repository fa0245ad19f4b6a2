// Package htmlutil holds pure helpers for pulling values out of
// server-rendered HTML. Nothing here performs I/O; absence of a field
// or element is reported as the empty string, never as an error.
package htmlutil

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ParseDocument parses a raw HTML body into a goquery document.
func ParseDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewBuffer(body))
}

// FormValue returns the value attribute of the first <input> whose
// name attribute matches, or "" when no such input exists.
func FormValue(doc *goquery.Document, name string) string {
	return doc.Find(fmt.Sprintf("input[name=%s]", name)).AttrOr("value", "")
}

// ElementValue returns the value attribute of the first element
// matching the given selector, or "" when nothing matches.
func ElementValue(doc *goquery.Document, selector string) string {
	return doc.Find(selector).AttrOr("value", "")
}

// MetaContent returns the content attribute of <meta name=...>, or "".
func MetaContent(doc *goquery.Document, name string) string {
	return doc.Find(fmt.Sprintf("meta[name=%s]", name)).AttrOr("content", "")
}

// FirstText returns the trimmed text of the first element matching the
// selector underneath sel, or "".
func FirstText(sel *goquery.Selection, selector string) string {
	nodes := sel.Find(selector).Nodes
	if len(nodes) == 0 {
		return ""
	}
	return strings.TrimSpace(GetText(nodes[0]))
}

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}
