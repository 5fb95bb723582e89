package topology

import (
	"errors"
	"fmt"
	"strings"

	"github.com/YARL-project/YARL/internal/spec"
)

// infer maps the spaces of a step's inputs onto the spaces of its outputs.
// Unknown inputs make every output unknown without reporting an error, so a
// single broken step does not cascade through the rest of the graph.
func infer(step Step, in []Space) ([]Space, error) {
	for _, s := range in {
		if !s.Known() {
			return nil, nil
		}
	}
	switch step.Canonical() {
	case spec.Splitter:
		return inferSplitter(step, in[0])
	case spec.Reshape:
		return inferReshape(step, in)
	case spec.HashBucket:
		return inferHashBucket(in[0])
	case spec.EmbeddingLookup:
		return inferEmbedding(step, in[0])
	case spec.LSTM:
		return inferLSTM(step, in)
	case spec.Conv2D:
		return inferConv2D(step, in[0])
	case spec.Dense:
		return inferDense(step, in[0])
	case spec.Concat:
		return inferConcat(step, in)
	}
	return nil, nil
}

func inferSplitter(step Step, in Space) ([]Space, error) {
	if in.Type != Dict {
		return nil, fmt.Errorf("input must be a dict space, got %s", in)
	}
	out := make([]Space, 0, len(step.OutputOrder))
	for _, key := range step.OutputOrder {
		child, ok := in.Spaces[key]
		if !ok {
			return nil, fmt.Errorf("input has no key %q (keys: %s)", key, strings.Join(in.Keys(), ", "))
		}
		out = append(out, *child)
	}
	return out, nil
}

func inferReshape(step Step, in []Space) ([]Space, error) {
	src := in[0]
	if src.Type == Dict {
		return nil, errors.New("cannot reshape a dict space")
	}
	out := src.withShape(src.Type, src.Shape...)

	switch {
	case step.FoldTimeRank:
		if !src.AddTimeRank {
			return nil, fmt.Errorf("fold_time_rank needs an input with a time rank, got %s", src)
		}
		out.AddTimeRank = false
		out.AddBatchRank = true
	case step.UnfoldTimeRank.Enabled():
		if src.AddTimeRank {
			return nil, fmt.Errorf("unfold_time_rank needs an input without a time rank, got %s", src)
		}
		if len(in) > 1 && !in[1].AddTimeRank {
			return nil, fmt.Errorf("unfold reference input %s has no time rank", in[1])
		}
		out.AddTimeRank = true
	}

	if len(step.NewShape) > 0 {
		shape, err := reshapeDims(src.Shape, step.NewShape)
		if err != nil {
			return nil, err
		}
		out.Shape = shape
	}
	return []Space{out}, nil
}

func reshapeDims(from, to []int) ([]int, error) {
	shape := append([]int(nil), to...)
	total := Space{Shape: from}.Size()
	known, flexible := 1, -1
	for i, d := range shape {
		if d == -1 {
			flexible = i
			continue
		}
		known *= d
	}
	if total < 0 {
		return shape, nil
	}
	if flexible >= 0 {
		if known == 0 || total%known != 0 {
			return nil, fmt.Errorf("cannot reshape %v (%d elements) into %v", from, total, to)
		}
		shape[flexible] = total / known
		return shape, nil
	}
	if known != total {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) into %v (%d elements)", from, total, to, known)
	}
	return shape, nil
}

func inferHashBucket(in Space) ([]Space, error) {
	if in.Type != Text {
		return nil, fmt.Errorf("input must be a text space, got %s", in)
	}
	if in.AddTimeRank {
		return nil, fmt.Errorf("input %s already has a time rank; fold it first", in)
	}
	tokens := Space{Type: Int, Shape: append([]int(nil), in.Shape...), AddBatchRank: in.AddBatchRank, AddTimeRank: true}
	lengths := Space{Type: Int, AddBatchRank: in.AddBatchRank}
	return []Space{tokens, lengths}, nil
}

func inferEmbedding(step Step, in Space) ([]Space, error) {
	if in.Type != Int {
		return nil, fmt.Errorf("input must be an int space, got %s", in)
	}
	shape := append(append([]int(nil), in.Shape...), step.EmbedDim)
	return []Space{in.withShape(Float, shape...)}, nil
}

func inferLSTM(step Step, in []Space) ([]Space, error) {
	src := in[0]
	if !src.Numeric() {
		return nil, fmt.Errorf("input must be numeric, got %s", src)
	}
	if !src.AddTimeRank {
		return nil, fmt.Errorf("input %s has no time rank to iterate over", src)
	}
	if len(in) > 1 && in[1].Type != Int {
		return nil, fmt.Errorf("sequence lengths must be an int space, got %s", in[1])
	}
	out := Space{Type: Float, Shape: []int{step.Units}, AddBatchRank: src.AddBatchRank, AddTimeRank: step.ReturnsSequences()}
	// Last internal states: c and h stacked.
	states := Space{Type: Float, Shape: []int{2, step.Units}, AddBatchRank: src.AddBatchRank}
	return []Space{out, states}, nil
}

func inferConv2D(step Step, in Space) ([]Space, error) {
	if !in.Numeric() {
		return nil, fmt.Errorf("input must be numeric, got %s", in)
	}
	if in.Rank() != 3 {
		return nil, fmt.Errorf("input must have shape [h, w, c], got %s", in)
	}
	kernel := step.KernelSize
	strides := step.Strides.Or(1)
	if !kernel.Positive() || !strides.Positive() {
		// Already reported against kernel_size/strides; the output stays unknown.
		return nil, nil
	}
	same := strings.EqualFold(step.Padding, "same")
	dims := make([]int, 2)
	for i := 0; i < 2; i++ {
		d := in.Shape[i]
		switch {
		case d < 0:
			dims[i] = -1
		case same:
			dims[i] = (d + strides[i] - 1) / strides[i]
		case d < kernel[i]:
			return nil, fmt.Errorf("kernel %d exceeds input dimension %d", kernel[i], d)
		default:
			dims[i] = (d-kernel[i])/strides[i] + 1
		}
	}
	return []Space{in.withShape(Float, dims[0], dims[1], step.Filters)}, nil
}

// Dense layers flatten everything but the batch/time ranks.
func inferDense(step Step, in Space) ([]Space, error) {
	if !in.Numeric() {
		return nil, fmt.Errorf("input must be numeric, got %s", in)
	}
	if in.Rank() == 0 {
		return nil, fmt.Errorf("input must have rank > 0, got %s", in)
	}
	return []Space{in.withShape(Float, step.Units)}, nil
}

func inferConcat(step Step, in []Space) ([]Space, error) {
	first := in[0]
	rank := first.Rank()
	if rank == 0 {
		return nil, fmt.Errorf("inputs must have rank > 0, got %s", first)
	}
	axis := rank - 1
	if step.Axis != nil {
		axis = *step.Axis
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank {
			return nil, fmt.Errorf("axis %d out of range for rank %d", *step.Axis, rank)
		}
	}

	shape := append([]int(nil), first.Shape...)
	for i, s := range in {
		if !s.Numeric() {
			return nil, fmt.Errorf("input %d must be numeric, got %s", i, s)
		}
		if s.Rank() != rank {
			return nil, fmt.Errorf("input %d has rank %d, expected %d", i, s.Rank(), rank)
		}
		if s.AddBatchRank != first.AddBatchRank || s.AddTimeRank != first.AddTimeRank {
			return nil, fmt.Errorf("input %d %s has different batch/time ranks than %s", i, s, first)
		}
		if i == 0 {
			continue
		}
		for d := 0; d < rank; d++ {
			a, b := shape[d], s.Shape[d]
			if d == axis {
				if a < 0 || b < 0 {
					shape[d] = -1
				} else {
					shape[d] = a + b
				}
				continue
			}
			switch {
			case a < 0:
				shape[d] = b
			case b >= 0 && a != b:
				return nil, fmt.Errorf("input %d dimension %d is %d, expected %d", i, d, b, a)
			}
		}
	}
	return []Space{first.withShape(Float, shape...)}, nil
}
