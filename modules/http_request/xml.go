package http_request

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// xmlNode is a generic element tree.
type xmlNode struct {
	name     string
	attrs    map[string]string
	text     strings.Builder
	children []*xmlNode
}

// parseXML decodes a document into nested objects of the form
// {name, attrs, text, children}.
func parseXML(doc string) (cty.Value, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	var stack []*xmlNode
	var root *xmlNode

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return cty.NilVal, fmt.Errorf("invalid xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: make(map[string]string)}
			for _, a := range t.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return cty.NilVal, fmt.Errorf("invalid xml: no root element")
	}
	return root.value(), nil
}

func (n *xmlNode) value() cty.Value {
	attrs := cty.MapValEmpty(cty.String)
	if len(n.attrs) > 0 {
		m := make(map[string]cty.Value, len(n.attrs))
		for k, v := range n.attrs {
			m[k] = cty.StringVal(v)
		}
		attrs = cty.MapVal(m)
	}
	children := cty.EmptyTupleVal
	if len(n.children) > 0 {
		vals := make([]cty.Value, len(n.children))
		for i, c := range n.children {
			vals[i] = c.value()
		}
		children = cty.TupleVal(vals)
	}
	return cty.ObjectVal(map[string]cty.Value{
		"name":     cty.StringVal(n.name),
		"attrs":    attrs,
		"text":     cty.StringVal(strings.TrimSpace(n.text.String())),
		"children": children,
	})
}
