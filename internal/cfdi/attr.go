package cfdi

import (
	"encoding/xml"
	"strings"

	"github.com/shopspring/decimal"
)

// CFDI namespace URIs, newest first. Attribute and element names moved
// between casings and namespaces across schema versions, so every read goes
// through the fallback chains below instead of a direct lookup.
const (
	NamespaceCFDI4 = "http://www.sat.gob.mx/cfd/4"
	NamespaceCFDI3 = "http://www.sat.gob.mx/cfd/3"
	NamespaceTFD   = "http://www.sat.gob.mx/TimbreFiscalDigital"
)

// node is a schema-agnostic XML element tree. Unmarshalling into it keeps
// every attribute and child regardless of namespace.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []node     `xml:",any"`
	Text     string     `xml:",chardata"`
}

// child returns the first direct child whose local name matches any of the
// candidate names (case-insensitive), or nil.
func (n *node) child(names ...string) *node {
	for _, name := range names {
		for i := range n.Children {
			if strings.EqualFold(n.Children[i].XMLName.Local, name) {
				return &n.Children[i]
			}
		}
	}
	return nil
}

// children returns every direct child matching the local name.
func (n *node) children(name string) []*node {
	var out []*node
	for i := range n.Children {
		if strings.EqualFold(n.Children[i].XMLName.Local, name) {
			out = append(out, &n.Children[i])
		}
	}
	return out
}

// findDeep searches the subtree breadth-first for the first element with the
// given local name. Used for complement nodes whose nesting varies.
func (n *node) findDeep(name string) *node {
	queue := []*node{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for i := range cur.Children {
			c := &cur.Children[i]
			if strings.EqualFold(c.XMLName.Local, name) {
				return c
			}
			queue = append(queue, c)
		}
	}
	return nil
}

// attrReader resolves an attribute by trying an ordered list of equivalent
// names; the first non-empty match wins. Numeric variants parse to a value
// and default to zero on absence or parse failure, never erroring.
type attrReader struct {
	n *node
}

func readerFor(n *node) attrReader { return attrReader{n: n} }

// String returns the first non-empty attribute among the candidate names.
func (r attrReader) String(names ...string) string {
	if r.n == nil {
		return ""
	}
	for _, name := range names {
		for _, a := range r.n.Attrs {
			if strings.EqualFold(a.Name.Local, name) && strings.TrimSpace(a.Value) != "" {
				return strings.TrimSpace(a.Value)
			}
		}
	}
	return ""
}

// Decimal parses the first matching attribute as a decimal amount,
// defaulting to zero.
func (r attrReader) Decimal(names ...string) decimal.Decimal {
	raw := r.String(names...)
	if raw == "" {
		return decimal.Zero
	}
	// Amounts occasionally carry thousands separators or currency symbols
	// when the XML was regenerated from a print layout.
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.TrimPrefix(raw, "$")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Float parses the first matching attribute as a float64, defaulting to 0.0.
func (r attrReader) Float(names ...string) float64 {
	d := r.Decimal(names...)
	f, _ := d.Float64()
	return f
}
