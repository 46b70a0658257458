package staging

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	domain "github.com/bryanwahyu/cu-orchestrator/internal/domain/staging"
)

// Target identifies a local directory and where it lives in the object store.
// Files replaces the directory walk for callers that only know the input names.
// With neither set, the primary inputs are taken from the listing itself.
type Target struct {
	LocalDir string
	Files    []string
	Prefix   string
	Mode     domain.Mode
}

func (t Target) remote() bool { return t.LocalDir == "" && len(t.Files) == 0 }

func (t Target) files() ([]string, error) {
	if t.LocalDir != "" {
		return LocalFiles(t.LocalDir)
	}
	return primaries(t.Files), nil
}

// primaries drops companions and empty names, returning sorted slash paths.
func primaries(names []string) []string {
	var out []string
	for _, f := range names {
		f = strings.TrimPrefix(filepath.ToSlash(f), "/")
		if f == "" || domain.IsCompanion(f) {
			continue
		}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// listedFiles turns the primary keys of a listing into names relative to prefix.
func listedFiles(prefix string, listed []string) []string {
	rel := make([]string, 0, len(listed))
	for _, k := range listed {
		if strings.HasPrefix(k, prefix) {
			rel = append(rel, strings.TrimPrefix(k, prefix))
		}
	}
	return primaries(rel)
}

// Report summarizes a successful validation or upload.
type Report struct {
	Prefix   string   `json:"prefix"`
	Mode     string   `json:"mode"`
	Files    []string `json:"files"`
	Required []string `json:"required,omitempty"`
	Uploaded []string `json:"uploaded,omitempty"`
}

// Validator checks that everything create-analyzer will reference is already
// staged. It only reads from the store.
type Validator struct {
	Store domain.ObjectStore
	Log   *slog.Logger
}

func NewValidator(store domain.ObjectStore, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{Store: store, Log: log}
}

// Validate lists the prefix once and compares it with the keys required by
// every input. Without local inputs an empty prefix is a precondition failure. Missing keys come back sorted in a MissingStagedResourceError.
func (v *Validator) Validate(ctx context.Context, t Target) (Report, error) {
	prefix := domain.NormalizePrefix(t.Prefix)
	var files []string
	if !t.remote() {
		var err error
		if files, err = t.files(); err != nil {
			return Report{}, err
		}
		if len(files) == 0 {
			return Report{}, fmt.Errorf("%w in %s", domain.ErrNoLocalFiles, t.LocalDir)
		}
	}

	listed, err := v.Store.List(ctx, prefix)
	if err != nil {
		return Report{}, fmt.Errorf("list %q: %w", prefix, err)
	}
	if t.remote() {
		files = listedFiles(prefix, listed)
		if len(files) == 0 {
			return Report{}, &domain.MissingStagedResourceError{Prefix: prefix}
		}
	}

	required, err := RequiredKeys(prefix, t.Mode, files)
	if err != nil {
		return Report{}, err
	}
	present := make(map[string]struct{}, len(listed))
	for _, k := range listed {
		present[k] = struct{}{}
	}

	var missing []string
	for _, k := range required {
		if _, ok := present[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		v.Log.Warn("staging.validate.missing", "prefix", prefix, "mode", t.Mode, "missing", len(missing), "first", missing[0])
		return Report{}, &domain.MissingStagedResourceError{Prefix: prefix, Missing: missing}
	}

	v.Log.Info("staging.validate.ok", "prefix", prefix, "mode", t.Mode, "files", len(files), "required", len(required))
	return Report{Prefix: prefix, Mode: string(t.Mode), Files: files, Required: required}, nil
}

// LocalFiles returns the primary inputs under dir as sorted, slash-separated
// relative paths. Companion artifacts are skipped.
func LocalFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if domain.IsCompanion(rel) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

// RequiredKeys is the sorted, de-duplicated set of keys mode needs for files.
func RequiredKeys(prefix string, mode domain.Mode, files []string) ([]string, error) {
	set := map[string]struct{}{}
	for _, f := range files {
		full, err := domain.Layout(prefix, f)
		if err != nil {
			return nil, err
		}
		for _, k := range mode.Required(full).Keys() {
			set[k] = struct{}{}
		}
	}
	for _, k := range mode.SharedKeys(prefix) {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
