package model

import "math"

// Kind tags the numeric representation held by a Value.
type Kind uint8

const (
	// Float marks a floating-point value (gauges, ratios, temperatures).
	Float Kind = iota + 1

	// Int marks an integer value (counters, sizes, event counts).
	Int
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	default:
		return "invalid"
	}
}

// Value is a tagged union of float64 and int64.
//
// The zero Value has no kind and is rejected by encoders. Use FloatValue or
// IntValue to construct one.
//
// Example:
//
//	v := model.FloatValue(45.5)
//	if v.IsFloat() {
//		fmt.Println(v.AsFloat())
//	}
type Value struct {
	kind Kind
	bits uint64
}

// FloatValue returns a Value tagged as Float.
func FloatValue(f float64) Value {
	return Value{kind: Float, bits: math.Float64bits(f)}
}

// IntValue returns a Value tagged as Int.
func IntValue(i int64) Value {
	return Value{kind: Int, bits: uint64(i)}
}

// Kind reports which member of the union is set.
func (v Value) Kind() Kind { return v.kind }

// IsFloat reports whether the value is tagged as Float.
func (v Value) IsFloat() bool { return v.kind == Float }

// AsFloat returns the float member. The result is meaningless for Int values.
func (v Value) AsFloat() float64 { return math.Float64frombits(v.bits) }

// AsInt returns the integer member. The result is meaningless for Float values.
func (v Value) AsInt() int64 { return int64(v.bits) }

// Metric is a named leaf of the metric tree.
//
// A Metric is owned by exactly one Group or by the root of a Tree. Its value
// must not change while a walk is in progress; see collector.Collector for a
// source that serializes refreshes with readers.
type Metric struct {
	// Name is the opaque token identifying the metric within its parent.
	Name Token

	// Value is the current measurement.
	Value Value
}

// NewFloat returns a float-valued metric.
func NewFloat(name Token, f float64) *Metric {
	return &Metric{Name: name, Value: FloatValue(f)}
}

// NewInt returns an integer-valued metric.
func NewInt(name Token, i int64) *Metric {
	return &Metric{Name: name, Value: IntValue(i)}
}

// Group is a named inner node of the metric tree.
//
// Children and Metrics are traversed in slice order, children first.
type Group struct {
	Name     Token
	Children []*Group
	Metrics  []*Metric
}

// NewGroup returns an empty group.
func NewGroup(name Token) *Group {
	return &Group{Name: name}
}

// AddGroup appends child to g and returns child.
func (g *Group) AddGroup(child *Group) *Group {
	g.Children = append(g.Children, child)
	return child
}

// AddMetric appends m to g and returns m.
func (g *Group) AddMetric(m *Metric) *Metric {
	g.Metrics = append(g.Metrics, m)
	return m
}

// Tree is the root collection: ungrouped metrics and top-level groups.
// Metrics are walked before Groups.
type Tree struct {
	Metrics []*Metric
	Groups  []*Group
}

// Read calls fn with t. It lets a plain Tree be used wherever a reader that
// serializes with mutators is expected.
func (t *Tree) Read(fn func(t *Tree)) {
	fn(t)
}

// Len returns the number of metrics in the tree.
func (t *Tree) Len() int {
	n := len(t.Metrics)
	for _, g := range t.Groups {
		n += g.Len()
	}
	return n
}

// Len returns the number of metrics in g and all of its descendants.
func (g *Group) Len() int {
	n := len(g.Metrics)
	for _, c := range g.Children {
		n += c.Len()
	}
	return n
}

// Depth returns the deepest path stack a walk of the tree needs: the longest
// metric path, or the deepest group when that group holds no metrics.
func (t *Tree) Depth() int {
	d := 0
	if len(t.Metrics) > 0 {
		d = 1
	}
	for _, g := range t.Groups {
		d = max(d, g.depth())
	}
	return d
}

func (g *Group) depth() int {
	d := 0
	if len(g.Metrics) > 0 {
		d = 1
	}
	for _, c := range g.Children {
		d = max(d, c.depth())
	}
	return d + 1
}
