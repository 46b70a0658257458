package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/cu-orchestrator/internal/domain/staging"
)

const DefaultConcurrency = 4

var ErrNoProducer = errors.New("staging: pro-mode-reference upload needs a result producer")

// ResultProducer turns one reference document into its OCR result JSON,
// usually by analyzing it with a prebuilt analyzer.
type ResultProducer interface {
	Produce(ctx context.Context, localPath string) ([]byte, error)
}

// Uploader stages a local directory under a prefix the way a mode expects.
type Uploader struct {
	Store       domain.ObjectStore
	Producer    ResultProducer
	Concurrency int
	Log         *slog.Logger
}

// sourceEntry is one line of sources.jsonl.
type sourceEntry struct {
	File       string `json:"file"`
	ResultFile string `json:"resultFile"`
}

type localUpload struct {
	path string
	key  string
}

// Upload copies every primary input and its companions. Local companions a
// mode depends on are checked before anything is sent.
func (u *Uploader) Upload(ctx context.Context, t Target) (Report, error) {
	log := u.Log
	if log == nil {
		log = slog.Default()
	}
	prefix := domain.NormalizePrefix(t.Prefix)

	files, err := LocalFiles(t.LocalDir)
	if err != nil {
		return Report{}, err
	}
	if len(files) == 0 {
		return Report{}, fmt.Errorf("%w in %s", domain.ErrNoLocalFiles, t.LocalDir)
	}
	if t.Mode == domain.ModeProReference && u.Producer == nil {
		return Report{}, ErrNoProducer
	}

	sets := make([]domain.StagedResourceSet, len(files))
	var missing []string
	for i, f := range files {
		full, err := domain.Layout(prefix, f)
		if err != nil {
			return Report{}, err
		}
		sets[i] = full
		local := filepath.Join(t.LocalDir, filepath.FromSlash(f))
		for _, need := range localCompanions(t.Mode, local) {
			if _, err := os.Stat(need); err != nil {
				missing = append(missing, need)
			}
		}
	}
	if len(missing) > 0 {
		return Report{}, fmt.Errorf("missing local companion %s (%d total)", missing[0], len(missing))
	}

	var (
		mu       sync.Mutex
		uploaded []string
	)
	record := func(key string) {
		mu.Lock()
		uploaded = append(uploaded, key)
		mu.Unlock()
	}

	limit := u.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, f := range files {
		f := f
		set := sets[i]
		local := filepath.Join(t.LocalDir, filepath.FromSlash(f))
		g.Go(func() error {
			for _, up := range u.plan(t.Mode, local, set) {
				if err := u.Store.UploadFile(gctx, up.path, up.key); err != nil {
					return fmt.Errorf("upload %s: %w", up.key, err)
				}
				record(up.key)
			}
			if t.Mode != domain.ModeProReference {
				return nil
			}
			result, err := u.Producer.Produce(gctx, local)
			if err != nil {
				return fmt.Errorf("produce result for %s: %w", f, err)
			}
			if err := u.Store.Upload(gctx, set.OCRResult, bytes.NewReader(result), int64(len(result)), "application/json"); err != nil {
				return fmt.Errorf("upload %s: %w", set.OCRResult, err)
			}
			record(set.OCRResult)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("staging.upload.failed", "prefix", prefix, "mode", t.Mode, "error", err)
		return Report{}, err
	}

	if t.Mode.Pro() {
		key := prefix + domain.SourcesListKey
		body, err := SourcesList(files)
		if err != nil {
			return Report{}, err
		}
		if err := u.Store.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/x-ndjson"); err != nil {
			return Report{}, fmt.Errorf("upload %s: %w", key, err)
		}
		uploaded = append(uploaded, key)
	}

	sort.Strings(uploaded)
	log.Info("staging.upload.done", "prefix", prefix, "mode", t.Mode, "files", len(files), "objects", len(uploaded))
	return Report{Prefix: prefix, Mode: string(t.Mode), Files: files, Uploaded: uploaded}, nil
}

// plan lists the local files copied verbatim for one input.
func (u *Uploader) plan(mode domain.Mode, local string, set domain.StagedResourceSet) []localUpload {
	out := []localUpload{{path: local, key: set.Primary}}
	switch mode {
	case domain.ModeStandardTraining:
		out = append(out,
			localUpload{path: domain.LabelKey(local), key: set.Label},
			localUpload{path: domain.ResultKey(local), key: set.OCRResult})
	case domain.ModeProSkipAnalyze:
		out = append(out, localUpload{path: domain.ResultKey(local), key: set.OCRResult})
	}
	return out
}

func localCompanions(mode domain.Mode, local string) []string {
	switch mode {
	case domain.ModeStandardTraining:
		return []string{domain.LabelKey(local), domain.ResultKey(local)}
	case domain.ModeProSkipAnalyze:
		return []string{domain.ResultKey(local)}
	}
	return nil
}

// SourcesList renders sources.jsonl for files (paths relative to the prefix).
func SourcesList(files []string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, f := range files {
		if err := enc.Encode(sourceEntry{File: f, ResultFile: domain.ResultKey(f)}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
