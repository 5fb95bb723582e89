package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical layer type names.
const (
	Dense             = "dense-layer"
	Conv2D            = "conv2d-layer"
	LSTM              = "lstm-layer"
	Concat            = "concat-layer"
	Reshape           = "reshape"
	Splitter          = "container-splitter"
	HashBucket        = "string-to-hash-bucket"
	EmbeddingLookup   = "embedding-lookup"
	ConvertType       = "convert-type"
	Divide            = "divide"
	Multiply          = "multiply"
	Clip              = "clip"
	Grayscale         = "grayscale"
	ImageResize       = "image-resize"
	Sequence          = "sequence"
	MovingStandardize = "moving-standardize"
)

var layerAliases = map[string]string{
	"dense":                 Dense,
	"dense-layer":           Dense,
	"conv2d":                Conv2D,
	"conv2d-layer":          Conv2D,
	"lstm":                  LSTM,
	"lstm-layer":            LSTM,
	"concat":                Concat,
	"concat-layer":          Concat,
	"reshape":               Reshape,
	"splitter":              Splitter,
	"container-splitter":    Splitter,
	"containersplitter":     Splitter,
	"hash-bucket":           HashBucket,
	"string-to-hash-bucket": HashBucket,
	"stringtohashbucket":    HashBucket,
	"embedding":             EmbeddingLookup,
	"embedding-lookup":      EmbeddingLookup,
	"embeddinglookup":       EmbeddingLookup,
	"convert-type":          ConvertType,
	"converttype":           ConvertType,
	"divide":                Divide,
	"multiply":              Multiply,
	"clip":                  Clip,
	"grayscale":             Grayscale,
	"image-resize":          ImageResize,
	"imageresize":           ImageResize,
	"sequence":              Sequence,
	"moving-standardize":    MovingStandardize,
	"movingstandardize":     MovingStandardize,
}

// CanonicalType maps a user supplied layer type (any case, '_' or '-') onto
// its canonical name.
func CanonicalType(t string) (string, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), "_", "-")
	name, ok := layerAliases[key]
	return name, ok
}

var activations = map[string]bool{
	"":           true,
	"linear":     true,
	"relu":       true,
	"relu6":      true,
	"tanh":       true,
	"sigmoid":    true,
	"softmax":    true,
	"softplus":   true,
	"elu":        true,
	"selu":       true,
	"swish":      true,
	"lrelu":      true,
	"leaky-relu": true,
}

// CanonicalActivation normalizes an activation name; the empty name means linear.
func CanonicalActivation(a string) (string, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(a)), "_", "-")
	if key == "none" {
		key = ""
	}
	if !activations[key] {
		return "", false
	}
	switch key {
	case "":
		return "linear", true
	case "leaky-relu":
		return "lrelu", true
	}
	return key, true
}

var dtypes = map[string]bool{
	"float": true, "float32": true, "float64": true,
	"int": true, "int32": true, "int64": true,
	"bool": true,
}

// Layer is a single layer descriptor. The same record is used for agent
// network_spec entries, preprocessing_spec entries and topology call steps;
// which parameters matter depends on Type.
type Layer struct {
	Type  string `json:"type"`
	Scope string `json:"scope,omitempty"`

	Units            int       `json:"units,omitempty"`
	Activation       string    `json:"activation,omitempty"`
	ActivationParams []float64 `json:"activation_params,omitempty"`
	WeightsSpec      any       `json:"weights_spec,omitempty"`
	BiasesSpec       any       `json:"biases_spec,omitempty"`

	Filters    int     `json:"filters,omitempty"`
	KernelSize IntPair `json:"kernel_size,omitzero"`
	Strides    IntPair `json:"strides,omitzero"`
	Padding    string  `json:"padding,omitempty"`

	ReturnSequences *bool `json:"return_sequences,omitempty"`

	NewShape       []int    `json:"new_shape,omitempty"`
	FoldTimeRank   bool     `json:"fold_time_rank,omitempty"`
	UnfoldTimeRank RankFlag `json:"unfold_time_rank,omitzero"`

	OutputOrder []string `json:"output_order,omitempty"`
	Axis        *int     `json:"axis,omitempty"`

	NumHashBuckets int    `json:"num_hash_buckets,omitempty"`
	HashFunction   string `json:"hash_function,omitempty"`
	Delimiter      string `json:"delimiter,omitempty"`

	EmbedDim  int `json:"embed_dim,omitempty"`
	VocabSize int `json:"vocab_size,omitempty"`

	ToDtype        string   `json:"to_dtype,omitempty"`
	Divisor        *float64 `json:"divisor,omitempty"`
	Factor         *float64 `json:"factor,omitempty"`
	Min            *float64 `json:"min,omitempty"`
	Max            *float64 `json:"max,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	SequenceLength int      `json:"sequence_length,omitempty"`
}

// Canonical returns the canonical type name, or "" when unknown.
func (l Layer) Canonical() string {
	name, _ := CanonicalType(l.Type)
	return name
}

// ReturnsSequences reports whether an LSTM keeps its time rank; the default is true.
func (l Layer) ReturnsSequences() bool {
	return l.ReturnSequences == nil || *l.ReturnSequences
}

// ValidateLayer checks the parameters a layer type requires. allowed limits
// which canonical types are acceptable at this position; nil allows all.
func ValidateLayer(path string, l Layer, allowed map[string]bool, c *Collector) {
	name, ok := CanonicalType(l.Type)
	if !ok {
		c.Addf(Join(path, "type"), ErrUnknownType, "%q", l.Type)
		return
	}
	if allowed != nil && !allowed[name] {
		c.Addf(Join(path, "type"), ErrUnknownType, "%q is not allowed here", l.Type)
		return
	}
	if _, ok := CanonicalActivation(l.Activation); !ok {
		c.Addf(Join(path, "activation"), ErrUnknownType, "%q", l.Activation)
	}

	switch name {
	case Dense, LSTM:
		if l.Units <= 0 {
			c.Addf(Join(path, "units"), ErrInvalidValue, "must be > 0, got %d", l.Units)
		}
	case Conv2D:
		if l.Filters <= 0 {
			c.Addf(Join(path, "filters"), ErrInvalidValue, "must be > 0, got %d", l.Filters)
		}
		if !l.KernelSize.Set() || !l.KernelSize.Positive() {
			c.Addf(Join(path, "kernel_size"), ErrInvalidValue, "must be a positive int or [h, w]")
		}
		if l.Strides.Set() && !l.Strides.Positive() {
			c.Addf(Join(path, "strides"), ErrInvalidValue, "must be a positive int or [h, w]")
		}
		switch strings.ToLower(l.Padding) {
		case "", "valid", "same":
		default:
			c.Addf(Join(path, "padding"), ErrInvalidValue, "%q is neither valid nor same", l.Padding)
		}
	case EmbeddingLookup:
		if l.EmbedDim <= 0 {
			c.Addf(Join(path, "embed_dim"), ErrInvalidValue, "must be > 0, got %d", l.EmbedDim)
		}
		if l.VocabSize <= 0 {
			c.Addf(Join(path, "vocab_size"), ErrInvalidValue, "must be > 0, got %d", l.VocabSize)
		}
	case HashBucket:
		if l.NumHashBuckets <= 0 {
			c.Addf(Join(path, "num_hash_buckets"), ErrInvalidValue, "must be > 0, got %d", l.NumHashBuckets)
		}
		switch l.HashFunction {
		case "", "fast", "strong":
		default:
			c.Addf(Join(path, "hash_function"), ErrUnknownType, "%q", l.HashFunction)
		}
	case Splitter:
		if len(l.OutputOrder) == 0 {
			c.Addf(Join(path, "output_order"), ErrInvalidValue, "must name at least one key")
		}
		seen := make(map[string]bool, len(l.OutputOrder))
		for i, key := range l.OutputOrder {
			if seen[key] {
				c.Addf(Join(path, "output_order", i), ErrInvalidValue, "key %q listed twice", key)
			}
			seen[key] = true
		}
	case Reshape:
		if l.FoldTimeRank && l.UnfoldTimeRank.Enabled() {
			c.Addf(path, ErrInvalidValue, "fold_time_rank and unfold_time_rank are mutually exclusive")
		}
		flexible := 0
		for i, d := range l.NewShape {
			switch {
			case d == -1:
				flexible++
			case d <= 0:
				c.Addf(Join(path, "new_shape", i), ErrInvalidValue, "dimension must be > 0 or -1, got %d", d)
			}
		}
		if flexible > 1 {
			c.Addf(Join(path, "new_shape"), ErrInvalidValue, "at most one dimension may be -1")
		}
	case ConvertType:
		if !dtypes[strings.ToLower(l.ToDtype)] {
			c.Addf(Join(path, "to_dtype"), ErrUnknownType, "%q", l.ToDtype)
		}
	case Divide:
		if l.Divisor == nil || *l.Divisor == 0 {
			c.Addf(Join(path, "divisor"), ErrInvalidValue, "must be set and non-zero")
		}
	case Multiply:
		if l.Factor == nil {
			c.Addf(Join(path, "factor"), ErrInvalidValue, "must be set")
		}
	case Clip:
		if l.Min == nil || l.Max == nil {
			c.Addf(path, ErrInvalidValue, "clip needs both min and max")
		} else if *l.Min >= *l.Max {
			c.Addf(path, ErrInvalidValue, "min %v must be below max %v", *l.Min, *l.Max)
		}
	case ImageResize:
		if l.Width <= 0 || l.Height <= 0 {
			c.Addf(path, ErrInvalidValue, "width and height must be > 0")
		}
	case Sequence:
		if l.SequenceLength <= 0 {
			c.Addf(Join(path, "sequence_length"), ErrInvalidValue, "must be > 0, got %d", l.SequenceLength)
		}
	}
}

// IntPair is a kernel size or stride, written either as a single int or as [h, w].
type IntPair [2]int

func (p IntPair) Set() bool      { return p[0] != 0 || p[1] != 0 }
func (p IntPair) Positive() bool { return p[0] > 0 && p[1] > 0 }

// Or returns p, or (d, d) when p is unset.
func (p IntPair) Or(d int) IntPair {
	if !p.Set() {
		return IntPair{d, d}
	}
	return p
}

func (p *IntPair) UnmarshalJSON(data []byte) error {
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		*p = IntPair{single, single}
		return nil
	}
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("expected int or [h, w]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("expected [h, w], got %d values", len(pair))
	}
	*p = IntPair{pair[0], pair[1]}
	return nil
}

func (p IntPair) MarshalJSON() ([]byte, error) {
	if p[0] == p[1] {
		return json.Marshal(p[0])
	}
	return json.Marshal([]int{p[0], p[1]})
}

// IsZero lets omitzero skip an unset pair.
func (p IntPair) IsZero() bool { return !p.Set() }

// RankFlag is unfold_time_rank: false, true, or the explicit time dimension.
type RankFlag struct {
	On   bool
	Size int
}

func (r RankFlag) Enabled() bool { return r.On }
func (r RankFlag) IsZero() bool  { return !r.On }

func (r *RankFlag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*r = RankFlag{On: b}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unfold_time_rank must be a bool or int: %w", err)
	}
	*r = RankFlag{On: true, Size: n}
	return nil
}

func (r RankFlag) MarshalJSON() ([]byte, error) {
	if r.On && r.Size > 0 {
		return json.Marshal(r.Size)
	}
	return json.Marshal(r.On)
}
