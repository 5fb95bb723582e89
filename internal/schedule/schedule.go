// Package schedule implements the hyperparameter schedules used by agent
// configurations: a constant, or a decay from one bound to another over
// training progress.
package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/YARL-project/YARL/internal/spec"
)

const (
	Constant    = "constant"
	Linear      = "linear"
	Polynomial  = "polynomial"
	Exponential = "exponential"
)

const (
	defaultPower     = 2.0
	defaultDecayRate = 0.1
)

var typeAliases = map[string]string{
	"constant":          Constant,
	"constant-decay":    Constant,
	"linear":            Linear,
	"linear-decay":      Linear,
	"polynomial":        Polynomial,
	"polynomial-decay":  Polynomial,
	"exponential":       Exponential,
	"exponential-decay": Exponential,
}

// Schedule is a value that moves from From to To as training progresses.
// A constant schedule has From == To.
type Schedule struct {
	Type          string
	From          float64
	To            float64
	Power         float64
	DecayRate     float64
	NumTimesteps  int
	StartTimestep int

	set bool
	err error
}

// Const returns a constant schedule.
func Const(v float64) Schedule {
	return Schedule{Type: Constant, From: v, To: v, set: true}
}

// New returns a decaying schedule of the given type.
func New(typ string, from, to float64) (Schedule, error) {
	name, ok := canonical(typ)
	if !ok {
		return Schedule{}, fmt.Errorf("%w: unknown type %q", spec.ErrMalformedSchedule, typ)
	}
	if name == Constant {
		to = from
	}
	s := Schedule{Type: name, From: from, To: to, set: true}
	s.applyDefaults()
	return s, nil
}

// Parse decodes any of the accepted serializations: a bare number, the array
// form ["linear", from, to(, num_timesteps)] or the object form
// {"type": ..., "from": ..., "to": ...}.
func Parse(data []byte) (Schedule, error) {
	var s Schedule
	if err := s.UnmarshalJSON(data); err != nil {
		return Schedule{}, err
	}
	if s.err != nil {
		return Schedule{}, s.err
	}
	return s, nil
}

func canonical(typ string) (string, bool) {
	name, ok := typeAliases[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(typ)), "_", "-")]
	return name, ok
}

// IsSet reports whether the field was present in the document.
func (s Schedule) IsSet() bool { return s.set }

// IsZero lets omitzero drop unset schedules.
func (s Schedule) IsZero() bool { return !s.set }

// Err returns the decode problem recorded for this schedule, if any.
func (s Schedule) Err() error { return s.err }

// Bounds returns the (from, to) pair every schedule resolves to.
func (s Schedule) Bounds() (float64, float64) {
	return s.From, s.To
}

// Value evaluates the schedule at progress p, clamped to [0, 1].
func (s Schedule) Value(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	switch s.Type {
	case Linear:
		return s.From + (s.To-s.From)*p
	case Polynomial:
		return s.To + (s.From-s.To)*math.Pow(1-p, s.Power)
	case Exponential:
		return s.To + (s.From-s.To)*math.Pow(s.DecayRate, p)
	default:
		return s.From
	}
}

// ValueAt evaluates the schedule at an absolute timestep. Without
// num_timesteps there is no horizon and the start value is returned.
func (s Schedule) ValueAt(timestep int) float64 {
	if s.NumTimesteps <= 0 {
		return s.From
	}
	return s.Value(float64(timestep-s.StartTimestep) / float64(s.NumTimesteps))
}

// Validate reports decode problems and invalid parameters under path.
func (s Schedule) Validate(path string, c *spec.Collector) {
	if s.err != nil {
		c.Add(&spec.FieldError{Path: path, Err: s.err})
		return
	}
	if !s.set {
		return
	}
	if math.IsNaN(s.From) || math.IsInf(s.From, 0) || math.IsNaN(s.To) || math.IsInf(s.To, 0) {
		c.Addf(path, spec.ErrMalformedSchedule, "bounds must be finite numbers")
	}
	if s.NumTimesteps < 0 {
		c.Addf(spec.Join(path, "num_timesteps"), spec.ErrMalformedSchedule, "must be >= 0, got %d", s.NumTimesteps)
	}
	if s.StartTimestep < 0 {
		c.Addf(spec.Join(path, "start_timestep"), spec.ErrMalformedSchedule, "must be >= 0, got %d", s.StartTimestep)
	}
	if s.Type == Polynomial && s.Power <= 0 {
		c.Addf(spec.Join(path, "power"), spec.ErrMalformedSchedule, "must be > 0, got %v", s.Power)
	}
	if s.Type == Exponential && (s.DecayRate <= 0 || s.DecayRate >= 1) {
		c.Addf(spec.Join(path, "decay_rate"), spec.ErrMalformedSchedule, "must be in (0, 1), got %v", s.DecayRate)
	}
}

// InRange reports bounds that fall outside [lo, hi].
func (s Schedule) InRange(path string, lo, hi float64, c *spec.Collector) {
	if !s.set || s.err != nil {
		return
	}
	for _, v := range []float64{s.From, s.To} {
		if v < lo || v > hi {
			c.Addf(path, spec.ErrInvalidValue, "%v is outside [%v, %v]", v, lo, hi)
			return
		}
	}
}

func (s *Schedule) applyDefaults() {
	if s.Type == Polynomial && s.Power == 0 {
		s.Power = defaultPower
	}
	if s.Type == Exponential && s.DecayRate == 0 {
		s.DecayRate = defaultDecayRate
	}
}

type objectForm struct {
	Type          string   `json:"type"`
	From          *float64 `json:"from,omitempty"`
	To            *float64 `json:"to,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	Power         float64  `json:"power,omitempty"`
	DecayRate     float64  `json:"decay_rate,omitempty"`
	NumTimesteps  int      `json:"num_timesteps,omitempty"`
	StartTimestep int      `json:"start_timestep,omitempty"`
}

// UnmarshalJSON never fails on a malformed schedule; the problem is kept and
// surfaced by Validate so that a document reports all of its errors at once.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = Schedule{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s.set = true
	switch data[0] {
	case '[':
		s.err = s.decodeArray(data)
	case '{':
		s.err = s.decodeObject(data)
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			s.err = fmt.Errorf("%w: expected number, array or object, got %s", spec.ErrMalformedSchedule, data)
			return nil
		}
		s.Type, s.From, s.To = Constant, v, v
	}
	if s.err == nil {
		s.applyDefaults()
	}
	return nil
}

func (s *Schedule) decodeArray(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("%w: %v", spec.ErrMalformedSchedule, err)
	}
	if len(items) < 3 || len(items) > 4 {
		return fmt.Errorf("%w: array form needs [type, from, to(, num_timesteps)], got %d elements", spec.ErrMalformedSchedule, len(items))
	}
	var typ string
	if err := json.Unmarshal(items[0], &typ); err != nil {
		return fmt.Errorf("%w: first element must be the type name", spec.ErrMalformedSchedule)
	}
	name, ok := canonical(typ)
	if !ok {
		return fmt.Errorf("%w: unknown type %q", spec.ErrMalformedSchedule, typ)
	}
	s.Type = name
	if err := json.Unmarshal(items[1], &s.From); err != nil {
		return fmt.Errorf("%w: from must be numeric, got %s", spec.ErrMalformedSchedule, items[1])
	}
	if err := json.Unmarshal(items[2], &s.To); err != nil {
		return fmt.Errorf("%w: to must be numeric, got %s", spec.ErrMalformedSchedule, items[2])
	}
	if len(items) == 4 {
		if err := json.Unmarshal(items[3], &s.NumTimesteps); err != nil {
			return fmt.Errorf("%w: num_timesteps must be an integer, got %s", spec.ErrMalformedSchedule, items[3])
		}
	}
	return nil
}

func (s *Schedule) decodeObject(data []byte) error {
	var obj objectForm
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", spec.ErrMalformedSchedule, err)
	}
	name, ok := canonical(obj.Type)
	if !ok {
		return fmt.Errorf("%w: unknown type %q", spec.ErrMalformedSchedule, obj.Type)
	}
	s.Type = name
	s.Power = obj.Power
	s.DecayRate = obj.DecayRate
	s.NumTimesteps = obj.NumTimesteps
	s.StartTimestep = obj.StartTimestep

	if name == Constant {
		switch {
		case obj.Value != nil:
			s.From, s.To = *obj.Value, *obj.Value
		case obj.From != nil:
			s.From, s.To = *obj.From, *obj.From
		default:
			return fmt.Errorf("%w: constant schedule needs value", spec.ErrMalformedSchedule)
		}
		return nil
	}
	if obj.From == nil || obj.To == nil {
		return fmt.Errorf("%w: %s schedule needs numeric from and to", spec.ErrMalformedSchedule, name)
	}
	s.From, s.To = *obj.From, *obj.To
	return nil
}

// MarshalJSON writes constants as bare numbers and everything else in the
// object form.
func (s Schedule) MarshalJSON() ([]byte, error) {
	if !s.set {
		return []byte("null"), nil
	}
	if s.Type == Constant && s.NumTimesteps == 0 && s.StartTimestep == 0 {
		return json.Marshal(s.From)
	}
	obj := objectForm{
		Type:          s.Type,
		From:          &s.From,
		To:            &s.To,
		NumTimesteps:  s.NumTimesteps,
		StartTimestep: s.StartTimestep,
	}
	if s.Type == Polynomial {
		obj.Power = s.Power
	}
	if s.Type == Exponential {
		obj.DecayRate = s.DecayRate
	}
	return json.Marshal(obj)
}

func (s Schedule) String() string {
	if s.Type == Constant {
		return fmt.Sprintf("%g", s.From)
	}
	return fmt.Sprintf("%s(%g -> %g)", s.Type, s.From, s.To)
}
