package feed

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/text/encoding/htmlindex"
)

// Element is a node of a parsed XML document. Name keeps the prefix as
// written in the feed ("itunes:image"), Local drops it ("image").
type Element struct {
	Name     string
	Local    string
	Attrs    map[string]string
	Children []*Element
	Value    string
}

// Child returns the first direct child whose qualified name is name.
func (e *Element) Child(name string) *Element {
	if e == nil {
		return nil
	}
	for _, child := range e.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// Attr returns the attribute value by local name, or "" when e is nil or the
// attribute is absent.
func (e *Element) Attr(name string) string {
	if e == nil {
		return ""
	}
	return e.Attrs[name]
}

// Text returns the trimmed text of e, or "" for a nil element.
func (e *Element) Text() string {
	if e == nil {
		return ""
	}
	return e.Value
}

// ElementsByTagName returns every descendant named name in document order.
func (e *Element) ElementsByTagName(name string) []*Element {
	var found []*Element
	var walk func(*Element)
	walk = func(el *Element) {
		for _, child := range el.Children {
			if child.Name == name {
				found = append(found, child)
			}
			walk(child)
		}
	}
	if e != nil {
		walk(e)
	}
	return found
}

// ParseTree maps raw XML to an Element tree. The returned element is a
// synthetic document node whose children are the top level elements.
func ParseTree(data []byte) (*Element, error) {
	p := xpp.NewXMLPullParser(bytes.NewReader(data), false, charsetReader)

	doc := &Element{}
	stack := []*Element{doc}
	texts := []*strings.Builder{{}}
	scopes := []map[string]string{{}}

	for {
		event, err := p.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to read XML: %w", err)
		}

		switch event {
		case xpp.StartTag:
			scope := scopes[len(scopes)-1]
			attrs := make(map[string]string, len(p.Attrs))
			for _, attr := range p.Attrs {
				switch {
				case attr.Name.Space == "xmlns":
					scope = withPrefix(scope, attr.Value, attr.Name.Local)
				case attr.Name.Space == "" && attr.Name.Local == "xmlns":
					scope = withPrefix(scope, attr.Value, "")
				default:
					attrs[attr.Name.Local] = attr.Value
				}
			}

			el := &Element{
				Name:  qualifiedName(scope, p.Space, p.Name),
				Local: p.Name,
				Attrs: attrs,
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, el)

			stack = append(stack, el)
			texts = append(texts, &strings.Builder{})
			scopes = append(scopes, scope)

		case xpp.EndTag:
			// Non-strict parsing may report stray end tags; never pop the document.
			if len(stack) == 1 {
				continue
			}
			el := stack[len(stack)-1]
			el.Value = strings.TrimSpace(texts[len(texts)-1].String())

			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
			scopes = scopes[:len(scopes)-1]

		case xpp.Text:
			texts[len(texts)-1].WriteString(p.Text)

		case xpp.EndDocument:
			return doc, nil
		}
	}
}

func withPrefix(scope map[string]string, uri, prefix string) map[string]string {
	next := make(map[string]string, len(scope)+1)
	for k, v := range scope {
		next[k] = v
	}
	next[strings.TrimSpace(uri)] = prefix
	return next
}

// qualifiedName rebuilds "prefix:local". The XML decoder reports declared
// prefixes as namespace URIs and undeclared ones verbatim.
func qualifiedName(scope map[string]string, space, local string) string {
	if space == "" {
		return local
	}
	prefix, ok := scope[space]
	if !ok {
		prefix = space
	}
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
