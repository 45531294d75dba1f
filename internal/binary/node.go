// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package binary implements WhatsApp's tagged binary stanza codec
// (BinaryNode), including the packed nibble/hex string grammars, JID
// encodings, and the fixed token dictionaries.
package binary

import "fmt"

// ContentKind discriminates what a Node's Content holds.
type ContentKind int

const (
	ContentNone ContentKind = iota
	ContentText
	ContentBytes
	ContentChildren
)

// Content is the tagged variant replacing the polymorphic
// string|[]byte|[]Node|absent content field of the original protocol.
type Content struct {
	Kind     ContentKind
	Text     string
	Bytes    []byte
	Children []*Node
}

// NoContent is the absent-content value.
var NoContent = Content{Kind: ContentNone}

// TextContent wraps a string as node content.
func TextContent(s string) Content { return Content{Kind: ContentText, Text: s} }

// BytesContent wraps a byte slice as node content.
func BytesContent(b []byte) Content { return Content{Kind: ContentBytes, Bytes: b} }

// ChildrenContent wraps a list of child nodes as node content.
func ChildrenContent(children ...*Node) Content {
	return Content{Kind: ContentChildren, Children: children}
}

// Node is a single tree node of the stanza wire format (BinaryNode in
// spec terms): a tag, a set of uniquely-keyed attributes, and content
// that is absent, text, raw bytes, or a homogeneous list of children.
type Node struct {
	Tag     string
	Attrs   map[string]string
	Content Content
}

// NewNode builds a Node with no content; use With* to attach content.
func NewNode(tag string, attrs map[string]string) *Node {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &Node{Tag: tag, Attrs: attrs}
}

// GetChildren returns the node's children, or nil if content isn't a list.
func (n *Node) GetChildren() []*Node {
	if n == nil || n.Content.Kind != ContentChildren {
		return nil
	}
	return n.Content.Children
}

// GetChildByTag returns the first child with the given tag, or nil.
func (n *Node) GetChildByTag(tag string) *Node {
	for _, c := range n.GetChildren() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// GetBytes returns the node's content as bytes, decoding a text content
// as UTF-8 if necessary.
func (n *Node) GetBytes() []byte {
	if n == nil {
		return nil
	}
	switch n.Content.Kind {
	case ContentBytes:
		return n.Content.Bytes
	case ContentText:
		return []byte(n.Content.Text)
	default:
		return nil
	}
}

// Attr returns an attribute value and whether it was present.
func (n *Node) Attr(key string) (string, bool) {
	if n == nil || n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[key]
	return v, ok
}

// AttrString returns an attribute value, or "" if absent.
func (n *Node) AttrString(key string) string {
	v, _ := n.Attr(key)
	return v
}

func (n *Node) String() string {
	return fmt.Sprintf("<%s attrs=%v content=%v>", n.Tag, n.Attrs, n.Content.Kind)
}
