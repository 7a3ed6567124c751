package spantree

import "errors"

// ErrSkipChildren can be returned by a WalkFunc to skip a span's subtree
var ErrSkipChildren = errors.New("skip children")

// WalkFunc is called for every span with its depth (roots are 0)
type WalkFunc func(span *Span, depth int) error

// Walk visits the forest depth-first, parents before children, in order.
// It stops at the first error other than ErrSkipChildren and returns it.
func Walk(forest []*Span, fn WalkFunc) error {
	type frame struct {
		span  *Span
		depth int
	}

	stack := make([]frame, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, frame{forest[i], 0})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(f.span, f.depth); err != nil {
			if errors.Is(err, ErrSkipChildren) {
				continue
			}
			return err
		}
		children := f.span.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{children[i], f.depth + 1})
		}
	}
	return nil
}

// Count returns the number of spans in the forest
func Count(forest []*Span) int {
	n := 0
	_ = Walk(forest, func(*Span, int) error {
		n++
		return nil
	})
	return n
}

var errFound = errors.New("found")

// Find returns the span with id, or nil
func Find(forest []*Span, id string) *Span {
	var found *Span
	_ = Walk(forest, func(s *Span, _ int) error {
		if s.ID == id {
			found = s
			return errFound
		}
		return nil
	})
	return found
}
