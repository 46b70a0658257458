package staging

import (
	"errors"
	"path"
	"strings"
)

const (
	LabelSuffix  = ".labels.json"
	ResultSuffix = ".result.json"

	// SourcesListKey is the reference-file manifest shared by every file in a pro-mode prefix.
	SourcesListKey = "sources.jsonl"
)

var ErrEmptyPath = errors.New("staging: empty file path")

// StagedResourceSet lists the object keys that belong to one logical input.
// Optional members are empty when the mode does not need them.
type StagedResourceSet struct {
	Primary       string
	Label         string
	OCRResult     string
	ReferenceList string
}

// Keys returns the non-empty keys of the set in a stable order.
func (s StagedResourceSet) Keys() []string {
	out := make([]string, 0, 4)
	for _, k := range []string{s.Primary, s.Label, s.OCRResult, s.ReferenceList} {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// LabelKey returns "<name>.labels.json".
func LabelKey(name string) string { return name + LabelSuffix }

// ResultKey returns "<name>.result.json".
func ResultKey(name string) string { return name + ResultSuffix }

// NormalizePrefix trims leading slashes and guarantees a trailing one.
// The empty prefix (container root) stays empty.
func NormalizePrefix(prefix string) string {
	p := strings.TrimLeft(strings.ReplaceAll(prefix, "\\", "/"), "/")
	if p == "" {
		return ""
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// ObjectKey joins a prefix and a relative local path into an object key.
func ObjectKey(prefix, relPath string) (string, error) {
	rel := strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(relPath, "\\", "/")), "/")
	if strings.TrimSpace(relPath) == "" || rel == "" || rel == "." {
		return "", ErrEmptyPath
	}
	return NormalizePrefix(prefix) + rel, nil
}

// Layout derives the full companion set for relPath under prefix. Every
// companion is filled in; callers filter by mode with Mode.Required.
func Layout(prefix, relPath string) (StagedResourceSet, error) {
	primary, err := ObjectKey(prefix, relPath)
	if err != nil {
		return StagedResourceSet{}, err
	}
	return StagedResourceSet{
		Primary:       primary,
		Label:         LabelKey(primary),
		OCRResult:     ResultKey(primary),
		ReferenceList: NormalizePrefix(prefix) + SourcesListKey,
	}, nil
}

// IsCompanion reports whether a local file is a companion artifact rather
// than a primary input.
func IsCompanion(name string) bool {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.HasSuffix(base, LabelSuffix) ||
		strings.HasSuffix(base, ResultSuffix) ||
		base == SourcesListKey
}
