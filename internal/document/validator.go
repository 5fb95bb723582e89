package document

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YARL-project/YARL/internal/spec"
	"github.com/YARL-project/YARL/internal/topology"
)

// Report is the outcome of validating one document.
type Report struct {
	ID        string    `json:"id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Kind      Kind      `json:"kind,omitempty"`
	Digest    string    `json:"digest,omitempty"`
	Valid     bool      `json:"valid"`
	Errors    []string  `json:"errors,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Observer receives one call per validated document.
type Observer interface {
	ObserveValidation(kind string, valid bool, elapsed time.Duration)
}

type Validator struct {
	Strict bool
	// SharedScopes additionally requires scopes to be unique across all
	// documents validated together.
	SharedScopes bool
	Parallelism  int
	Observer     Observer

	logger *zap.Logger
}

func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		Parallelism: 4,
		logger:      logger.With(zap.String("component", "validator")),
	}
}

// Check validates a decoded document. A valid topology is also resolved so
// that unused variables surface as warnings.
func (v *Validator) Check(doc *Document) Report {
	start := time.Now()
	r := Report{Path: doc.Path, Kind: doc.Kind, Digest: doc.Digest, CheckedAt: start.UTC()}

	var err error
	switch doc.Kind {
	case KindAgent:
		err = doc.Agent.Validate()
	case KindTopology:
		var g *topology.Graph
		g, err = topology.Resolve(doc.Topology)
		if g != nil {
			r.Warnings = append(r.Warnings, g.Warnings...)
		}
	default:
		err = fmt.Errorf("%w: document kind %q", spec.ErrUnknownType, doc.Kind)
	}
	r.Errors = spec.Messages(err)
	r.Valid = len(r.Errors) == 0
	v.observe(r, time.Since(start))
	return r
}

// CheckBytes decodes and validates raw bytes; decode failures become an
// invalid report rather than an error.
func (v *Validator) CheckBytes(data []byte, format Format, kind Kind) Report {
	doc, err := Parse(data, format, kind, v.Strict)
	if err != nil {
		r := Report{Kind: kind, Errors: []string{err.Error()}, CheckedAt: time.Now().UTC()}
		v.observe(r, 0)
		return r
	}
	return v.Check(doc)
}

// CheckFiles validates every path concurrently and returns reports in input order.
func (v *Validator) CheckFiles(ctx context.Context, paths []string, kind Kind) ([]Report, error) {
	reports := make([]Report, len(paths))
	docs := make([]*Document, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if v.Parallelism > 0 {
		g.SetLimit(v.Parallelism)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := Load(path, kind, v.Strict)
			if err != nil {
				reports[i] = Report{Path: path, Kind: kind, Errors: []string{err.Error()}, CheckedAt: time.Now().UTC()}
				v.observe(reports[i], 0)
				return nil
			}
			docs[i] = doc
			reports[i] = v.Check(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if v.SharedScopes {
		crossCheckScopes(docs, reports)
	}
	return reports, nil
}

func crossCheckScopes(docs []*Document, reports []Report) {
	owners := spec.Scopes{}
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		for _, d := range doc.DeclaredScopes() {
			if err := owners.Claim(d.Name, doc.Path+":"+d.Path); err != nil {
				if declaredEarlier(doc, d) {
					continue
				}
				reports[i].Errors = append(reports[i].Errors, err.Error())
				reports[i].Valid = false
			}
		}
	}
}

// declaredEarlier reports whether d repeats a scope from earlier in the same
// document; Check already reported those.
func declaredEarlier(doc *Document, d spec.Declared) bool {
	for _, other := range doc.DeclaredScopes() {
		if other.Path == d.Path {
			return false
		}
		if other.Name == d.Name {
			return true
		}
	}
	return false
}

func (v *Validator) observe(r Report, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("path", r.Path),
		zap.String("kind", string(r.Kind)),
		zap.Bool("valid", r.Valid),
		zap.Int("errors", len(r.Errors)),
		zap.Int("warnings", len(r.Warnings)),
		zap.Duration("elapsed", elapsed),
	}
	if r.Valid {
		v.logger.Debug("document validated", fields...)
	} else {
		v.logger.Info("document rejected", fields...)
	}
	if v.Observer != nil {
		kind := string(r.Kind)
		if kind == "" {
			kind = "unknown"
		}
		v.Observer.ObserveValidation(kind, r.Valid, elapsed)
	}
}
