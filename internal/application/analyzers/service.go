package analyzers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/cu-orchestrator/internal/application"
	appstaging "github.com/bryanwahyu/cu-orchestrator/internal/application/staging"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/journal"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
	domain "github.com/bryanwahyu/cu-orchestrator/internal/domain/staging"
	"github.com/bryanwahyu/cu-orchestrator/internal/infra/cu"
)

// DefaultReferenceAnalyzer produces OCR results for pro-mode reference documents.
const DefaultReferenceAnalyzer = "prebuilt-documentAnalyzer"

// ContentClient is the part of the service client the workflows need.
type ContentClient interface {
	CreateAnalyzer(ctx context.Context, id string, body *cu.Object, opts ...cu.CallOption) (*operation.Envelope, error)
	AnalyzeBinary(ctx context.Context, analyzerID string, data io.Reader, contentType string, opts ...cu.CallOption) (*operation.Envelope, error)
	AnalyzeURL(ctx context.Context, analyzerID, inputURL string, opts ...cu.CallOption) (*operation.Envelope, error)
	Classify(ctx context.Context, classifierID, inputURL string, opts ...cu.CallOption) (*operation.Envelope, error)
	DeleteAnalyzer(ctx context.Context, id string) error
	ListAnalyzers(ctx context.Context) ([]*cu.Object, error)
}

// Service implements use-cases untuk analyzer, aman dipakai concurrent.
type Service struct {
	Client  ContentClient
	Store   domain.ObjectStore
	Journal journal.Repository // optional
	Clock   application.Clock
	Log     *slog.Logger

	// CleanupOnFailure deletes an analyzer whose creation failed or timed out.
	CleanupOnFailure  bool
	SASExpiry         time.Duration
	ReferenceAnalyzer string
	Concurrency       int
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}

func (s *Service) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func (s *Service) sasExpiry() time.Duration {
	if s.SASExpiry <= 0 {
		return 2 * time.Hour
	}
	return s.SASExpiry
}

//
// ==== USE CASES ====
//

// CreateCommand untuk bikin analyzer. Whenever the request references staged
// data it is validated first; without LocalDir or Files the inputs come from
// the listing under Prefix.
type CreateCommand struct {
	TenantID   string
	AnalyzerID string
	Template   *cu.Object
	Mode       domain.Mode
	Prefix     string
	LocalDir   string
	Files      []string // primary input names, when there is no LocalDir
	Staged     bool     // reference Prefix even without LocalDir
}

func (c CreateCommand) usesStorage() bool { return c.LocalDir != "" || len(c.Files) > 0 || c.Staged }

// Result is what every workflow returns.
type Result struct {
	RecordID   string              `json:"record_id,omitempty"`
	Status     journal.Status      `json:"status"`
	Operation  *operation.Envelope `json:"operation,omitempty"`
	DurationMS int64               `json:"duration_ms"`
}

// CreateFromStagedData validates staged resources, builds the request and
// runs create-analyzer to completion. A precondition failure sends nothing
// to the service.
func (s *Service) CreateFromStagedData(ctx context.Context, cmd CreateCommand) (Result, error) {
	if cmd.AnalyzerID == "" {
		return Result{}, fmt.Errorf("analyzer id is required")
	}
	mode := cmd.Mode
	if mode == "" {
		mode = domain.ModeStandardTraining
	}

	var pointer cu.StoragePointer
	if cmd.usesStorage() {
		v := appstaging.NewValidator(s.Store, s.log())
		if _, err := v.Validate(ctx, appstaging.Target{LocalDir: cmd.LocalDir, Files: cmd.Files, Prefix: cmd.Prefix, Mode: mode}); err != nil {
			s.reject(ctx, cmd.TenantID, operation.KindCreateAnalyzer, cmd.AnalyzerID, err)
			return Result{Status: journal.StatusRejected}, err
		}
		container, err := s.Store.ContainerURL(ctx, s.sasExpiry())
		if err != nil {
			return Result{}, fmt.Errorf("container url: %w", err)
		}
		pointer = cu.PointerForMode(mode, container, cmd.Prefix)
	}

	body, err := cu.BuildRequest(operation.KindCreateAnalyzer, cmd.Template, pointer)
	if err != nil {
		s.reject(ctx, cmd.TenantID, operation.KindCreateAnalyzer, cmd.AnalyzerID, err)
		return Result{Status: journal.StatusRejected}, err
	}

	var opts []cu.CallOption
	if mode.Pro() {
		opts = append(opts, cu.WithLongTimeout())
	}
	res, err := s.track(ctx, cmd.TenantID, operation.KindCreateAnalyzer, cmd.AnalyzerID, func(ctx context.Context) (*operation.Envelope, error) {
		return s.Client.CreateAnalyzer(ctx, cmd.AnalyzerID, body, opts...)
	})
	if err != nil && s.CleanupOnFailure && (errors.Is(err, operation.ErrOperationFailed) || errors.Is(err, operation.ErrTimeout)) {
		s.cleanup(ctx, cmd.AnalyzerID)
	}
	return res, err
}

// StageAndCreate uploads LocalDir under Prefix, then validates and creates.
func (s *Service) StageAndCreate(ctx context.Context, cmd CreateCommand) (Result, error) {
	if cmd.LocalDir == "" {
		return Result{}, fmt.Errorf("local directory is required for staging")
	}
	mode := cmd.Mode
	if mode == "" {
		mode = domain.ModeStandardTraining
	}
	up := &appstaging.Uploader{Store: s.Store, Concurrency: s.Concurrency, Log: s.log()}
	if mode == domain.ModeProReference {
		up.Producer = s.ReferenceProducer()
	}
	if _, err := up.Upload(ctx, appstaging.Target{LocalDir: cmd.LocalDir, Prefix: cmd.Prefix, Mode: mode}); err != nil {
		return Result{}, err
	}
	cmd.Mode = mode
	return s.CreateFromStagedData(ctx, cmd)
}

// ReferenceProducer analyzes reference documents with the prebuilt analyzer.
func (s *Service) ReferenceProducer() appstaging.ResultProducer {
	id := s.ReferenceAnalyzer
	if id == "" {
		id = DefaultReferenceAnalyzer
	}
	return &AnalyzeProducer{Client: s.Client, AnalyzerID: id}
}

// AnalyzeFile sends a local file's bytes directly.
func (s *Service) AnalyzeFile(ctx context.Context, tenant, analyzerID, localPath string) (Result, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return s.AnalyzeReader(ctx, tenant, analyzerID, f, contentTypeOf(localPath))
}

// AnalyzeReader analyzes an already opened stream.
func (s *Service) AnalyzeReader(ctx context.Context, tenant, analyzerID string, r io.Reader, contentType string) (Result, error) {
	return s.track(ctx, tenant, operation.KindAnalyze, analyzerID, func(ctx context.Context) (*operation.Envelope, error) {
		return s.Client.AnalyzeBinary(ctx, analyzerID, r, contentType)
	})
}

// AnalyzeRemote uploads a local file to the store and lets the service fetch it
// through a presigned URL.
func (s *Service) AnalyzeRemote(ctx context.Context, tenant, analyzerID, localPath string) (Result, error) {
	key := fmt.Sprintf("inputs/%s/%s/%s", tenant, uuid.NewString(), filepath.Base(localPath))
	if err := s.Store.UploadFile(ctx, localPath, key); err != nil {
		return Result{}, fmt.Errorf("upload input: %w", err)
	}
	u, err := s.Store.PresignGet(ctx, key, s.sasExpiry())
	if err != nil {
		return Result{}, err
	}
	return s.AnalyzeURL(ctx, tenant, analyzerID, u)
}

func (s *Service) AnalyzeURL(ctx context.Context, tenant, analyzerID, inputURL string) (Result, error) {
	return s.track(ctx, tenant, operation.KindAnalyze, analyzerID, func(ctx context.Context) (*operation.Envelope, error) {
		return s.Client.AnalyzeURL(ctx, analyzerID, inputURL)
	})
}

func (s *Service) Classify(ctx context.Context, tenant, classifierID, inputURL string) (Result, error) {
	return s.track(ctx, tenant, operation.KindClassify, classifierID, func(ctx context.Context) (*operation.Envelope, error) {
		return s.Client.Classify(ctx, classifierID, inputURL)
	})
}

func (s *Service) Delete(ctx context.Context, analyzerID string) error {
	return s.Client.DeleteAnalyzer(ctx, analyzerID)
}

func (s *Service) List(ctx context.Context) ([]*cu.Object, error) {
	return s.Client.ListAnalyzers(ctx)
}

// Latest ambil N operasi terakhir
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*journal.Record, error) {
	if s.Journal == nil {
		return nil, ErrNoJournal
	}
	return s.Journal.Latest(ctx, tenant, limit)
}

// Get ambil 1 operasi by id
func (s *Service) Get(ctx context.Context, tenant string, id journal.RecordID) (*journal.Record, error) {
	if s.Journal == nil {
		return nil, ErrNoJournal
	}
	return s.Journal.Get(ctx, tenant, id)
}

func (s *Service) Operations(ctx context.Context, tenant string, page, pageSize int, f journal.Filter) (journal.Page, error) {
	if s.Journal == nil {
		return journal.Page{}, ErrNoJournal
	}
	return s.Journal.Paginate(ctx, tenant, page, pageSize, f)
}

var ErrNoJournal = errors.New("operation journal is not configured")

// track runs one submit-and-poll flow and journals it. Journal failures are
// logged and never change the outcome.
func (s *Service) track(ctx context.Context, tenant string, kind operation.Kind, target string, run func(context.Context) (*operation.Envelope, error)) (Result, error) {
	start := s.clock().Now()
	rec := &journal.Record{
		ID:        journal.RecordID(uuid.NewString()),
		TenantID:  tenant,
		Kind:      kind,
		Target:    target,
		Status:    journal.StatusRunning,
		CreatedAt: start,
		UpdatedAt: start,
	}
	s.save(ctx, rec)

	env, err := run(ctx)

	end := s.clock().Now()
	rec.UpdatedAt = end
	rec.DurationMS = end.Sub(start).Milliseconds()
	rec.Status, rec.ErrorCode, rec.ErrorMessage = outcome(err)
	rec.Handle = handleOf(env, err)
	s.save(context.WithoutCancel(ctx), rec)

	log := s.log().With("tenant", tenant, "kind", kind, "target", target, "record", rec.ID)
	if err != nil {
		log.Warn("workflow.finished", "status", rec.Status, "error", err, "duration_ms", rec.DurationMS)
	} else {
		log.Info("workflow.finished", "status", rec.Status, "duration_ms", rec.DurationMS)
	}

	return Result{RecordID: string(rec.ID), Status: rec.Status, Operation: env, DurationMS: rec.DurationMS}, err
}

// reject journals a flow that never reached the service.
func (s *Service) reject(ctx context.Context, tenant string, kind operation.Kind, target string, cause error) {
	now := s.clock().Now()
	status, code, msg := outcome(cause)
	s.save(ctx, &journal.Record{
		ID:           journal.RecordID(uuid.NewString()),
		TenantID:     tenant,
		Kind:         kind,
		Target:       target,
		Status:       status,
		ErrorCode:    code,
		ErrorMessage: msg,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (s *Service) save(ctx context.Context, rec *journal.Record) {
	if s.Journal == nil {
		return
	}
	if err := s.Journal.Save(ctx, rec); err != nil {
		s.log().Error("journal.save.failed", "record", rec.ID, "error", err)
	}
}

func (s *Service) cleanup(ctx context.Context, analyzerID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.Client.DeleteAnalyzer(cctx, analyzerID); err != nil {
		s.log().Error("workflow.cleanup.failed", "analyzer", analyzerID, "error", err)
		return
	}
	s.log().Info("workflow.cleanup.done", "analyzer", analyzerID)
}

// outcome maps an error onto the journal status plus code and message.
func outcome(err error) (journal.Status, string, string) {
	if err == nil {
		return journal.StatusSucceeded, "", ""
	}
	var (
		failed *operation.OperationFailedError
		sub    *operation.SubmissionError
	)
	switch {
	case errors.As(err, &failed):
		return journal.StatusFailed, failed.Detail.Code, err.Error()
	case errors.Is(err, operation.ErrTimeout):
		return journal.StatusTimedOut, "Timeout", err.Error()
	case errors.As(err, &sub):
		return journal.StatusRejected, sub.Detail.Code, err.Error()
	case errors.Is(err, operation.ErrPrecondition):
		return journal.StatusRejected, "PreconditionFailed", err.Error()
	case errors.Is(err, operation.ErrAuth):
		return journal.StatusRejected, "AuthFailed", err.Error()
	case errors.Is(err, context.Canceled):
		return journal.StatusFailed, "Cancelled", err.Error()
	default:
		return journal.StatusFailed, "Error", err.Error()
	}
}

func handleOf(env *operation.Envelope, err error) string {
	var (
		failed  *operation.OperationFailedError
		timeout *operation.TimeoutError
	)
	switch {
	case errors.As(err, &failed):
		return failed.Handle.String()
	case errors.As(err, &timeout):
		return timeout.Handle.String()
	case env != nil:
		return env.ID
	}
	return ""
}

func contentTypeOf(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// AnalyzeProducer implements staging.ResultProducer with an analyze run.
type AnalyzeProducer struct {
	Client     ContentClient
	AnalyzerID string
}

func (p *AnalyzeProducer) Produce(ctx context.Context, localPath string) ([]byte, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	env, err := p.Client.AnalyzeBinary(ctx, p.AnalyzerID, f, contentTypeOf(localPath))
	if err != nil {
		return nil, err
	}
	return env.Raw, nil
}
