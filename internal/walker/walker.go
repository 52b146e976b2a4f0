// Package walker traverses a metric tree depth first and hands every metric,
// together with its full path, to a Writer.
package walker

import "github.com/idudko/go-metric-stream/internal/model"

// Writer consumes metrics in traversal order. The path slice is only valid
// for the duration of the call.
type Writer interface {
	Write(m *model.Metric, path []model.Token) error
}

// Walker walks metric trees in pre-order: for each group its name is pushed,
// then its child groups are walked, then its own metrics, then the name is
// popped.
//
// The path stack is bounded by model.MaxDepth and a deeper tree panics.
// A Walker is not safe for concurrent use.
type Walker struct {
	path   model.Path
	writer Writer
}

// New returns a Walker that feeds w.
func New(w Writer) *Walker {
	return &Walker{writer: w}
}

// WalkMetrics writes each metric under the current path.
func (w *Walker) WalkMetrics(metrics []*model.Metric) error {
	for _, m := range metrics {
		if err := w.writeMetric(m); err != nil {
			return err
		}
	}
	return nil
}

// WalkGroups walks each group in order, stopping at the first error.
func (w *Walker) WalkGroups(groups []*model.Group) error {
	for _, g := range groups {
		if err := w.WalkGroup(g); err != nil {
			return err
		}
	}
	return nil
}

// WalkGroup walks g and everything below it.
func (w *Walker) WalkGroup(g *model.Group) error {
	w.path.Push(g.Name)
	defer w.path.Pop()

	if err := w.WalkGroups(g.Children); err != nil {
		return err
	}
	return w.WalkMetrics(g.Metrics)
}

// Walk walks the root metrics, then the root groups.
func (w *Walker) Walk(t *model.Tree) error {
	if err := w.WalkMetrics(t.Metrics); err != nil {
		return err
	}
	return w.WalkGroups(t.Groups)
}

// Depth returns the current path length; zero between walks.
func (w *Walker) Depth() int { return w.path.Len() }

func (w *Walker) writeMetric(m *model.Metric) error {
	w.path.Push(m.Name)
	defer w.path.Pop()
	return w.writer.Write(m, w.path.Tokens())
}
