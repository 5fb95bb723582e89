// Package document loads agent and topology documents from JSON or YAML and
// validates them into reports.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/YARL-project/YARL/internal/agent"
	"github.com/YARL-project/YARL/internal/spec"
	"github.com/YARL-project/YARL/internal/topology"
)

type Kind string

const (
	KindAgent    Kind = "agent"
	KindTopology Kind = "topology"
)

// ParseKind accepts "", "agent" or "topology"; "" means auto-detect.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case KindAgent:
		return KindAgent, nil
	case KindTopology, "network":
		return KindTopology, nil
	}
	return "", fmt.Errorf("%w: document kind %q", spec.ErrUnknownType, s)
}

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension; anything but .yaml/.yml is JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

var ErrUnknownKind = errors.New("cannot determine document kind")

// Document is a decoded agent or topology document.
type Document struct {
	Path     string
	Kind     Kind
	Digest   string
	Agent    *agent.Config
	Topology *topology.Document
}

// DeclaredScopes returns the scopes written in the document.
func (d *Document) DeclaredScopes() []spec.Declared {
	switch d.Kind {
	case KindAgent:
		return d.Agent.DeclaredScopes()
	case KindTopology:
		return d.Topology.DeclaredScopes()
	}
	return nil
}

// ToJSON normalizes YAML input to JSON so that both formats share one
// decoding path.
func ToJSON(data []byte, format Format) ([]byte, error) {
	if format != FormatYAML {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert yaml to json: %w", err)
	}
	return out, nil
}

// DetectKind inspects the top-level keys of a JSON object.
func DetectKind(data []byte) (Kind, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return "", fmt.Errorf("document must be a JSON object: %w", err)
	}
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := top[k]; ok {
				return true
			}
		}
		return false
	}
	switch {
	case has("layers", "input_space"):
		return KindTopology, nil
	case has("network_spec", "memory_spec", "optimizer_spec", "update_spec"):
		return KindAgent, nil
	}
	return "", ErrUnknownKind
}

// Parse decodes raw bytes. An empty kind is auto-detected.
func Parse(data []byte, format Format, kind Kind, strict bool) (*Document, error) {
	raw, err := ToJSON(data, format)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if kind == "" {
		if kind, err = DetectKind(raw); err != nil {
			return nil, err
		}
	}
	sum := sha256.Sum256(raw)
	doc := &Document{Kind: kind, Digest: hex.EncodeToString(sum[:])}
	switch kind {
	case KindAgent:
		doc.Agent, err = agent.Decode(raw, strict)
	case KindTopology:
		doc.Topology, err = topology.Decode(raw, strict)
	default:
		err = fmt.Errorf("%w: document kind %q", spec.ErrUnknownType, kind)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Load reads and decodes a file.
func Load(path string, kind Kind, strict bool) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Parse(data, FormatOf(path), kind, strict)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}
