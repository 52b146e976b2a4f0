package walker

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/idudko/go-metric-stream/internal/model"
)

// names maps single-letter names to tokens and back for readable paths.
var names = map[model.Token]string{}

func tok(name string) model.Token {
	t := model.TokenOf(name)
	names[t] = name
	return t
}

type recorder struct {
	paths  []string
	failAt int
	err    error
}

func (r *recorder) Write(m *model.Metric, path []model.Token) error {
	if path[len(path)-1] != m.Name {
		return fmt.Errorf("path %v does not end with metric name %v", path, m.Name)
	}
	parts := make([]string, len(path))
	for i, t := range path {
		parts[i] = names[t]
	}
	r.paths = append(r.paths, strings.Join(parts, "/"))
	if r.failAt > 0 && len(r.paths) == r.failAt {
		return r.err
	}
	return nil
}

// depth3Tree builds:
//
//	root metrics: a
//	g1
//	  g2
//	    g3: c, d
//	    e
//	  g4: f
//	  b
//	g5: h
func depth3Tree() *model.Tree {
	g3 := &model.Group{Name: tok("g3"), Metrics: []*model.Metric{model.NewInt(tok("c"), 1), model.NewFloat(tok("d"), 2)}}
	g2 := &model.Group{Name: tok("g2"), Children: []*model.Group{g3}, Metrics: []*model.Metric{model.NewInt(tok("e"), 3)}}
	g4 := &model.Group{Name: tok("g4"), Metrics: []*model.Metric{model.NewInt(tok("f"), 4)}}
	g1 := &model.Group{Name: tok("g1"), Children: []*model.Group{g2, g4}, Metrics: []*model.Metric{model.NewInt(tok("b"), 5)}}
	g5 := &model.Group{Name: tok("g5"), Metrics: []*model.Metric{model.NewInt(tok("h"), 6)}}
	return &model.Tree{
		Metrics: []*model.Metric{model.NewInt(tok("a"), 0)},
		Groups:  []*model.Group{g1, g5},
	}
}

func TestWalker_PreOrder(t *testing.T) {
	rec := &recorder{}
	w := New(rec)

	if err := w.Walk(depth3Tree()); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := []string{
		"a",
		"g1/g2/g3/c",
		"g1/g2/g3/d",
		"g1/g2/e",
		"g1/g4/f",
		"g1/b",
		"g5/h",
	}
	if !slices.Equal(rec.paths, want) {
		t.Errorf("unexpected traversal order:\n got  %v\n want %v", rec.paths, want)
	}
	if w.Depth() != 0 {
		t.Errorf("expected empty path after walk, got depth %d", w.Depth())
	}
}

func TestWalker_SeparateRootWalks(t *testing.T) {
	tree := depth3Tree()
	rec := &recorder{}
	w := New(rec)

	if err := w.WalkMetrics(tree.Metrics); err != nil {
		t.Fatal(err)
	}
	if err := w.WalkGroups(tree.Groups); err != nil {
		t.Fatal(err)
	}
	if len(rec.paths) != tree.Len() {
		t.Errorf("expected %d paths, got %d", tree.Len(), len(rec.paths))
	}
}

func TestWalker_StopsAtFirstError(t *testing.T) {
	errBoom := errors.New("boom")
	rec := &recorder{failAt: 3, err: errBoom}
	w := New(rec)

	err := w.Walk(depth3Tree())
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if len(rec.paths) != 3 {
		t.Errorf("expected walk to stop after 3 writes, got %d", len(rec.paths))
	}
	if w.Depth() != 0 {
		t.Errorf("expected every scope to pop on error, got depth %d", w.Depth())
	}
}

func TestWalker_EmptyTree(t *testing.T) {
	rec := &recorder{}
	w := New(rec)
	if err := w.Walk(&model.Tree{Groups: []*model.Group{model.NewGroup(tok("empty"))}}); err != nil {
		t.Fatal(err)
	}
	if len(rec.paths) != 0 {
		t.Errorf("expected no writes, got %v", rec.paths)
	}
}

func TestWalker_MaxDepth(t *testing.T) {
	// model.MaxDepth names: three groups and the metric.
	leaf := &model.Group{Name: tok("l3"), Metrics: []*model.Metric{model.NewInt(tok("m"), 1)}}
	mid := &model.Group{Name: tok("l2"), Children: []*model.Group{leaf}}
	top := &model.Group{Name: tok("l1"), Children: []*model.Group{mid}}

	rec := &recorder{}
	if err := New(rec).WalkGroup(top); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rec.paths, []string{"l1/l2/l3/m"}) {
		t.Errorf("unexpected paths %v", rec.paths)
	}
}

func TestWalker_DepthOverflowPanics(t *testing.T) {
	leaf := &model.Group{Name: tok("l4"), Metrics: []*model.Metric{model.NewInt(tok("m"), 1)}}
	g := leaf
	for _, name := range []string{"l3", "l2", "l1"} {
		g = &model.Group{Name: tok(name), Children: []*model.Group{g}}
	}

	rec := &recorder{}
	defer func() {
		if recover() == nil {
			t.Error("expected panic for a tree deeper than MaxDepth")
		}
		if len(rec.paths) != 0 {
			t.Errorf("expected no writes before the panic, got %v", rec.paths)
		}
	}()
	New(rec).WalkGroup(g)
}
