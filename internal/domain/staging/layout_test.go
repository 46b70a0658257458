package staging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

func TestNormalizePrefix(t *testing.T) {
	cases := map[string]string{
		"":          "",
		"/":         "",
		"train":     "train/",
		"train/":    "train/",
		"/a/b":      "a/b/",
		`docs\2025`: "docs/2025/",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePrefix(in), in)
		assert.Equal(t, want, NormalizePrefix(NormalizePrefix(in)), "idempotent for %q", in)
	}
}

func TestLayout(t *testing.T) {
	set, err := Layout("train", "invoices/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, StagedResourceSet{
		Primary:       "train/invoices/a.pdf",
		Label:         "train/invoices/a.pdf.labels.json",
		OCRResult:     "train/invoices/a.pdf.result.json",
		ReferenceList: "train/sources.jsonl",
	}, set)

	again, err := Layout("train/", "./invoices//a.pdf")
	require.NoError(t, err)
	assert.Equal(t, set, again)

	root, err := Layout("", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", root.Primary)
	assert.Equal(t, "sources.jsonl", root.ReferenceList)

	_, err = Layout("train", "  ")
	assert.ErrorIs(t, err, ErrEmptyPath)
	_, err = Layout("train", ".")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestObjectKey_StaysUnderPrefix(t *testing.T) {
	key, err := ObjectKey("p", "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "p/etc/passwd", key)
}

func TestIsCompanion(t *testing.T) {
	assert.True(t, IsCompanion("a.pdf.labels.json"))
	assert.True(t, IsCompanion("dir/a.pdf.result.json"))
	assert.True(t, IsCompanion("sources.jsonl"))
	assert.False(t, IsCompanion("a.pdf"))
	assert.False(t, IsCompanion("labels.json.pdf"))
}

func TestMode_Requirements(t *testing.T) {
	full, err := Layout("p", "a.pdf")
	require.NoError(t, err)

	std := ModeStandardTraining.Required(full)
	assert.Equal(t, []string{"p/a.pdf", "p/a.pdf.labels.json", "p/a.pdf.result.json"}, std.Keys())
	assert.Empty(t, ModeStandardTraining.SharedKeys("p"))
	assert.Equal(t, PointerTrainingData, ModeStandardTraining.Pointer())

	for _, m := range []Mode{ModeProReference, ModeProSkipAnalyze} {
		req := m.Required(full)
		assert.Equal(t, []string{"p/a.pdf", "p/a.pdf.result.json"}, req.Keys(), m)
		assert.Equal(t, []string{"p/sources.jsonl"}, m.SharedKeys("/p"), m)
		assert.Equal(t, PointerKnowledgeSources, m.Pointer())
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"":                      ModeStandardTraining,
		"standard":              ModeStandardTraining,
		"Pro":                   ModeProReference,
		"pro-mode-reference":    ModeProReference,
		"skip-analyze":          ModeProSkipAnalyze,
		"pro-mode-skip-analyze": ModeProSkipAnalyze,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("turbo")
	assert.Error(t, err)
}

func TestMissingStagedResourceError(t *testing.T) {
	err := &MissingStagedResourceError{Prefix: "p/", Missing: []string{"p/a.pdf.labels.json", "p/b.pdf.labels.json"}}
	assert.True(t, errors.Is(err, operation.ErrPrecondition))
	assert.Contains(t, err.Error(), "p/a.pdf.labels.json")
	assert.Contains(t, err.Error(), "and 1 more")

	m, ok := AsMissing(errors.Join(errors.New("ctx"), err))
	require.True(t, ok)
	assert.Len(t, m.Missing, 2)
	assert.True(t, errors.Is(ErrNoLocalFiles, operation.ErrPrecondition))
}
