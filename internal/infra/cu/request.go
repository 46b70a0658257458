package cu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/staging"
)

var (
	ErrConflictingPointer = errors.New("request: template already declares a storage pointer")
	ErrPointerNotAllowed  = errors.New("request: storage pointer is only valid when creating an analyzer")
	ErrMissingContainer   = errors.New("request: storage pointer needs a container url")
	ErrInvalidTemplate    = errors.New("request: invalid template")
)

// IsRequestError reports caller mistakes in building a request body.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrConflictingPointer) || errors.Is(err, ErrPointerNotAllowed) ||
		errors.Is(err, ErrMissingContainer) || errors.Is(err, ErrInvalidTemplate) || errors.Is(err, ErrNotObject)
}

// StoragePointer is the one storage block injected into a create-analyzer body.
// TrainingData and KnowledgeSources are the only implementations.
type StoragePointer interface {
	Kind() staging.PointerKind
	block() Value
}

// TrainingData points the service at labeled training pairs (standard mode).
type TrainingData struct {
	ContainerURL string
	Prefix       string
}

func (TrainingData) Kind() staging.PointerKind { return staging.PointerTrainingData }

func (t TrainingData) block() Value {
	return NewObject().
		Set("containerUrl", String(t.ContainerURL)).
		Set("kind", String("blob")).
		Set("prefix", String(staging.NormalizePrefix(t.Prefix)))
}

// KnowledgeSources points the service at reference documents (pro mode).
type KnowledgeSources struct {
	ContainerURL string
	Prefix       string
	FileListPath string
}

func (KnowledgeSources) Kind() staging.PointerKind { return staging.PointerKnowledgeSources }

func (k KnowledgeSources) block() Value {
	list := k.FileListPath
	if list == "" {
		list = staging.SourcesListKey
	}
	return Array{NewObject().
		Set("containerUrl", String(k.ContainerURL)).
		Set("kind", String("reference")).
		Set("prefix", String(staging.NormalizePrefix(k.Prefix))).
		Set("fileListPath", String(list))}
}

// PointerForMode picks the pointer variant a staging mode uses.
func PointerForMode(mode staging.Mode, containerURL, prefix string) StoragePointer {
	if mode.Pro() {
		return KnowledgeSources{ContainerURL: containerURL, Prefix: prefix}
	}
	return TrainingData{ContainerURL: containerURL, Prefix: prefix}
}

// BuildRequest returns a fresh body: a deep copy of template plus at most one
// storage pointer. template is never modified.
func BuildRequest(kind operation.Kind, template *Object, pointer StoragePointer) (*Object, error) {
	if err := ValidateTemplate(kind, template); err != nil {
		return nil, err
	}
	body := template.Clone()
	// typed nil pointers count as no pointer
	switch p := pointer.(type) {
	case *TrainingData:
		if p == nil {
			pointer = nil
		} else {
			pointer = *p
		}
	case *KnowledgeSources:
		if p == nil {
			pointer = nil
		} else {
			pointer = *p
		}
	}
	if pointer == nil {
		return body, nil
	}
	if kind != operation.KindCreateAnalyzer {
		return nil, fmt.Errorf("%w (kind %s)", ErrPointerNotAllowed, kind)
	}

	var url string
	switch p := pointer.(type) {
	case TrainingData:
		url = p.ContainerURL
	case KnowledgeSources:
		url = p.ContainerURL
	}
	if strings.TrimSpace(url) == "" {
		return nil, ErrMissingContainer
	}

	for _, k := range []staging.PointerKind{staging.PointerTrainingData, staging.PointerKnowledgeSources} {
		if body.Has(string(k)) {
			return nil, fmt.Errorf("%w: %q present, refusing to add %q", ErrConflictingPointer, k, pointer.Kind())
		}
	}
	body.Set(string(pointer.Kind()), pointer.block())
	return body, nil
}

// minimal per-kind shape checks; the service owns real validation
var templateSchemas = map[operation.Kind]string{
	operation.KindCreateAnalyzer: `{
  "type": "object",
  "properties": {
    "baseAnalyzerId": {"type": "string"},
    "description": {"type": "string"},
    "mode": {"enum": ["standard", "pro"]},
    "config": {"type": "object"},
    "fieldSchema": {"type": "object"},
    "trainingData": {"type": "object"},
    "knowledgeSources": {"type": "array"}
  }
}`,
	operation.KindCreateClassifier: `{
  "type": "object",
  "properties": {
    "description": {"type": "string"},
    "categories": {"type": "object"},
    "splitMode": {"type": "string"}
  }
}`,
	operation.KindAnalyze: `{
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "inputs": {"type": "array", "items": {"type": "object"}}
  }
}`,
}

var (
	schemaOnce sync.Once
	compiled   map[operation.Kind]*jsonschema.Schema
	schemaErr  error
)

func compileSchemas() {
	compiled = make(map[operation.Kind]*jsonschema.Schema, len(templateSchemas))
	for kind, src := range templateSchemas {
		name := string(kind) + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
			schemaErr = fmt.Errorf("add schema %s: %w", name, err)
			return
		}
		s, err := compiler.Compile(name)
		if err != nil {
			schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		compiled[kind] = s
	}
}

// ValidateTemplate checks the template shape for kind. A nil template is valid.
func ValidateTemplate(kind operation.Kind, template *Object) error {
	if template == nil {
		return nil
	}
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	schema, ok := compiled[kind]
	if !ok {
		// classify bodies share the analyze shape
		schema = compiled[operation.KindAnalyze]
	}

	raw, err := template.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode template: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: template does not match %s shape: %w", ErrInvalidTemplate, kind, err)
	}
	return nil
}
