// Package selector derives stable locator strings and descriptors for
// elements in a captured document snapshot. Everything here is a pure
// function of the parsed snapshot; nothing touches the live page.
package selector

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/stepcap/stepcap/internal/protocol"
)

// TestAttr is the test-identifier attribute checked first when building
// a selector.
const TestAttr = "data-testid"

// attrAllowList is the fixed set of attributes copied into an element
// descriptor.
var attrAllowList = []string{"id", "class", "name", "type", "role", "placeholder", "autocomplete", "aria-label", TestAttr}

// classToken matches a CSS class name usable directly in a class selector.
var classToken = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// maxTextLen caps the visible text captured into a descriptor.
const maxTextLen = 100

// Selector derives a locator for n within doc. Strategies are tried in
// priority order: test identifier, unique id, aria-label, first valid class
// token, positional path from the body. Candidate attribute and class
// selectors are parsed with cascadia before use; anything the query engine
// rejects falls through to the positional path.
func Selector(doc, n *html.Node) string {
	if v := Attr(n, TestAttr); v != "" {
		if sel := fmt.Sprintf("[%s=%q]", TestAttr, v); validSelector(sel) {
			return sel
		}
	}

	if id := Attr(n, "id"); id != "" && idUnique(doc, id) {
		if sel := "#" + id; validSelector(sel) {
			return sel
		}
	}

	if v := Attr(n, "aria-label"); v != "" {
		if sel := fmt.Sprintf("[aria-label=%q]", v); validSelector(sel) {
			return sel
		}
	}

	if cls := firstClass(n); cls != "" && classToken.MatchString(cls) {
		if sel := "." + cls; validSelector(sel) {
			return sel
		}
	}

	return positionalPath(n)
}

// Describe extracts the element descriptor persisted with an action: tag
// name, generated selector, trimmed text, current value, and the attribute
// allow-list.
func Describe(doc, n *html.Node) protocol.ElementInfo {
	info := protocol.ElementInfo{
		Tag:      n.Data,
		Selector: Selector(doc, n),
		Text:     trimText(nodeText(n)),
		Value:    elementValue(n),
	}
	for _, name := range attrAllowList {
		if v := Attr(n, name); v != "" {
			if info.Attributes == nil {
				info.Attributes = map[string]string{}
			}
			info.Attributes[name] = v
		}
	}
	return info
}

// ResolvePath walks an element-child index path from the document body to
// the element it names. Returns nil when the path does not resolve.
func ResolvePath(doc *html.Node, path []int) *html.Node {
	n := findBody(doc)
	if n == nil {
		return nil
	}
	for _, idx := range path {
		n = elementChild(n, idx)
		if n == nil {
			return nil
		}
	}
	return n
}

// Attr returns the value of the named attribute, or "" when absent.
func Attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// hasAttr reports whether the attribute is present, even with an empty
// value. Boolean attributes like selected parse that way.
func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// HasAncestorAttr reports whether n or any of its ancestors carries the
// named attribute.
func HasAncestorAttr(n *html.Node, name string) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == name {
					return true
				}
			}
		}
	}
	return false
}

// validSelector reports whether the query engine accepts sel.
func validSelector(sel string) bool {
	_, err := cascadia.Parse(sel)
	return err == nil
}

// idUnique reports whether exactly one element in doc has the given id.
func idUnique(doc *html.Node, id string) bool {
	sel := fmt.Sprintf("[id=%q]", id)
	if !validSelector(sel) {
		return false
	}
	return goquery.NewDocumentFromNode(doc).Find(sel).Length() == 1
}

// firstClass returns the first class token of n, or "".
func firstClass(n *html.Node) string {
	fields := strings.Fields(Attr(n, "class"))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// positionalPath builds the fallback selector: tag names with 1-based
// same-tag sibling indexes from the body down to n.
func positionalPath(n *html.Node) string {
	var parts []string
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if n.Data == "body" {
			parts = append(parts, "body")
			break
		}
		parts = append(parts, fmt.Sprintf("%s:nth-of-type(%d)", n.Data, sameTagIndex(n)))
	}
	// Reverse into document order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

// sameTagIndex returns n's 1-based position among same-tag element siblings.
func sameTagIndex(n *html.Node) int {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			idx++
		}
	}
	return idx
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}

// elementChild returns the idx-th element child of n (0-based), skipping
// text and comment nodes.
func elementChild(n *html.Node, idx int) *html.Node {
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if i == idx {
			return c
		}
		i++
	}
	return nil
}

// nodeText collects the concatenated text content under n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// trimText collapses whitespace and caps the length of captured text,
// cutting on a rune boundary so the result stays valid UTF-8.
func trimText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxTextLen {
		runes := []rune(s)
		s = string(runes[:maxTextLen])
	}
	return s
}

// elementValue returns the current value for form elements.
func elementValue(n *html.Node) string {
	switch n.Data {
	case "input":
		return Attr(n, "value")
	case "textarea":
		return strings.TrimSpace(nodeText(n))
	case "select":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "option" && hasAttr(c, "selected") {
				if v := Attr(c, "value"); v != "" {
					return v
				}
				return strings.TrimSpace(nodeText(c))
			}
		}
	}
	return ""
}
