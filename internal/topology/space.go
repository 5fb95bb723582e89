package topology

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Space kinds.
const (
	Float = "float"
	Int   = "int"
	Bool  = "bool"
	Text  = "text"
	Dict  = "dict"
)

var spaceAliases = map[string]string{
	"float":     Float,
	"float-box": Float,
	"floatbox":  Float,
	"int":       Int,
	"int-box":   Int,
	"intbox":    Int,
	"bool":      Bool,
	"bool-box":  Bool,
	"boolbox":   Bool,
	"text":      Text,
	"text-box":  Text,
	"textbox":   Text,
	"dict":      Dict,
}

// Space describes the data flowing through a variable: its kind, its shape
// without batch/time ranks, and whether those ranks are present. A dimension
// of -1 is unknown. The zero Space means "not inferable".
type Space struct {
	Type         string            `json:"type"`
	Shape        []int             `json:"shape,omitempty"`
	Low          any               `json:"low,omitempty"`
	High         any               `json:"high,omitempty"`
	AddBatchRank bool              `json:"add_batch_rank,omitempty"`
	AddTimeRank  bool              `json:"add_time_rank,omitempty"`
	Spaces       map[string]*Space `json:"spaces,omitempty"`
}

func canonicalSpace(t string) (string, bool) {
	name, ok := spaceAliases[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), "_", "-")]
	return name, ok
}

// Known reports whether the space was inferred.
func (s Space) Known() bool { return s.Type != "" }

func (s Space) Rank() int { return len(s.Shape) }

// Numeric reports whether s can feed an NN layer.
func (s Space) Numeric() bool {
	return s.Type == Float || s.Type == Int || s.Type == Bool
}

// Size is the number of elements per item, or -1 when a dimension is unknown.
func (s Space) Size() int {
	n := 1
	for _, d := range s.Shape {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

func (s Space) withShape(kind string, shape ...int) Space {
	return Space{Type: kind, Shape: shape, AddBatchRank: s.AddBatchRank, AddTimeRank: s.AddTimeRank}
}

// normalized canonicalizes kinds and pushes a container's batch/time ranks
// down into its children.
func (s Space) normalized() (Space, error) {
	kind, ok := canonicalSpace(s.Type)
	if !ok {
		return Space{}, fmt.Errorf("unknown space type %q", s.Type)
	}
	out := s
	out.Type = kind
	out.Shape = append([]int(nil), s.Shape...)
	for i, d := range out.Shape {
		if d <= 0 && d != -1 {
			return Space{}, fmt.Errorf("shape[%d] must be > 0 or -1, got %d", i, d)
		}
	}
	if kind != Dict {
		if len(s.Spaces) > 0 {
			return Space{}, fmt.Errorf("%s space cannot have sub-spaces", kind)
		}
		return out, nil
	}
	if len(s.Spaces) == 0 {
		return Space{}, fmt.Errorf("dict space needs at least one sub-space")
	}
	out.Spaces = make(map[string]*Space, len(s.Spaces))
	for name, child := range s.Spaces {
		if child == nil {
			return Space{}, fmt.Errorf("sub-space %q is empty", name)
		}
		c := *child
		c.AddBatchRank = c.AddBatchRank || s.AddBatchRank
		c.AddTimeRank = c.AddTimeRank || s.AddTimeRank
		n, err := c.normalized()
		if err != nil {
			return Space{}, fmt.Errorf("%s: %w", name, err)
		}
		out.Spaces[name] = &n
	}
	return out, nil
}

// Keys returns a dict space's field names in sorted order.
func (s Space) Keys() []string {
	keys := make([]string, 0, len(s.Spaces))
	for k := range s.Spaces {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s Space) String() string {
	if !s.Known() {
		return "?"
	}
	var b strings.Builder
	b.WriteString(s.Type)
	if s.Type == Dict {
		b.WriteByte('{')
		for i, k := range s.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(s.Spaces[k].String())
		}
		b.WriteByte('}')
		return b.String()
	}
	b.WriteByte('(')
	for i, d := range s.Shape {
		if i > 0 {
			b.WriteByte(',')
		}
		if d < 0 {
			b.WriteByte('?')
		} else {
			b.WriteString(strconv.Itoa(d))
		}
	}
	b.WriteByte(')')
	switch {
	case s.AddBatchRank && s.AddTimeRank:
		b.WriteString("[B,T]")
	case s.AddBatchRank:
		b.WriteString("[B]")
	case s.AddTimeRank:
		b.WriteString("[T]")
	}
	return b.String()
}
