package model

import "fmt"

// MaxDepth bounds the number of names in a metric path, the metric's own name
// included. Trees deeper than this cannot be walked.
const MaxDepth = 4

// Path is a bounded stack of name tokens, root first.
//
// The zero value is an empty path ready to use. Path never allocates.
type Path struct {
	tokens [MaxDepth]Token
	n      int
}

// Push appends name to the path.
//
// Pushing onto a full path panics: it means MaxDepth is smaller than the tree
// being walked, and continuing would emit truncated paths.
func (p *Path) Push(name Token) {
	if p.n >= len(p.tokens) {
		panic(fmt.Sprintf("model: metrics are too deep; path capacity %d exceeded by 0x%08x", len(p.tokens), uint32(name)))
	}
	p.tokens[p.n] = name
	p.n++
}

// Pop removes the last name. Popping an empty path is a no-op.
func (p *Path) Pop() {
	if p.n > 0 {
		p.n--
		p.tokens[p.n] = 0
	}
}

// Len returns the number of names on the path.
func (p *Path) Len() int { return p.n }

// Tokens returns the current path. The slice aliases the path's storage and
// is only valid until the next Push or Pop.
func (p *Path) Tokens() []Token { return p.tokens[:p.n] }
