package staging

import (
	"fmt"
	"strings"
)

// Mode enum
type Mode string

const (
	ModeStandardTraining Mode = "standard-training"
	ModeProReference     Mode = "pro-mode-reference"
	ModeProSkipAnalyze   Mode = "pro-mode-skip-analyze"
)

// PointerKind names the request block a mode injects.
type PointerKind string

const (
	PointerTrainingData     PointerKind = "trainingData"
	PointerKnowledgeSources PointerKind = "knowledgeSources"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStandardTraining, "standard", "":
		return ModeStandardTraining, nil
	case ModeProReference, "pro", "reference":
		return ModeProReference, nil
	case ModeProSkipAnalyze, "skip-analyze":
		return ModeProSkipAnalyze, nil
	}
	return "", fmt.Errorf("unknown staging mode %q (allowed: %s, %s, %s)",
		s, ModeStandardTraining, ModeProReference, ModeProSkipAnalyze)
}

// Pro reports whether the mode ingests reference documents.
func (m Mode) Pro() bool {
	return m == ModeProReference || m == ModeProSkipAnalyze
}

// Pointer returns the storage pointer block the mode uses.
func (m Mode) Pointer() PointerKind {
	if m.Pro() {
		return PointerKnowledgeSources
	}
	return PointerTrainingData
}

// Required narrows a full layout to the keys this mode needs per file.
// The reference list is mode-wide and is not included here; see SharedKeys.
func (m Mode) Required(full StagedResourceSet) StagedResourceSet {
	req := StagedResourceSet{Primary: full.Primary, OCRResult: full.OCRResult}
	if m == ModeStandardTraining {
		req.Label = full.Label
	}
	return req
}

// SharedKeys lists keys required once per prefix.
func (m Mode) SharedKeys(prefix string) []string {
	if !m.Pro() {
		return nil
	}
	return []string{NormalizePrefix(prefix) + SourcesListKey}
}
