// Package pipeline composes the per-file translation flow: submit the
// document, poll the job to a terminal state, fetch the artifact and publish
// it to blob storage.
package pipeline

import (
	"context"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/polylate/polylate/internal/apperrors"
	"github.com/polylate/polylate/internal/language"
	"github.com/polylate/polylate/internal/poll"
	"github.com/polylate/polylate/internal/storage"
	"github.com/polylate/polylate/internal/translation"
)

const defaultWorkers = 4

// FileResult is one entry of the aggregated response: either a signed access
// URL or the error that stopped that file's pipeline.
type FileResult struct {
	FileName  string `json:"file_name"`
	AccessURL string `json:"access_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Succeeded reports whether the file made it through the whole pipeline.
func (r FileResult) Succeeded() bool {
	return r.Error == ""
}

// Orchestrator drives independent per-file pipelines and aggregates their
// results. Files within one request run concurrently under a bounded worker
// limit; one file failing never cancels its siblings.
type Orchestrator struct {
	provider  translation.DocumentProvider
	poller    *poll.Poller
	publisher *storage.Publisher
	namer     *storage.ContainerNamer
	workers   int
	logger    zerolog.Logger
}

func NewOrchestrator(
	provider translation.DocumentProvider,
	poller *poll.Poller,
	publisher *storage.Publisher,
	namer *storage.ContainerNamer,
	workers int,
	logger zerolog.Logger,
) *Orchestrator {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Orchestrator{
		provider:  provider,
		poller:    poller,
		publisher: publisher,
		namer:     namer,
		workers:   workers,
		logger:    logger,
	}
}

// Result is the aggregated outcome of one translate request.
type Result struct {
	Container string
	Files     []FileResult
}

// TranslateDocuments runs one pipeline per document against a destination
// container created fresh for this batch. The returned file slice preserves
// input order and always has one entry per document.
func (o *Orchestrator) TranslateDocuments(ctx context.Context, docs []translation.Document, opts translation.DocumentOptions) (Result, error) {
	return o.TranslateDocumentsWith(ctx, o.provider, docs, opts)
}

// TranslateDocumentsWith runs the same pipeline through an explicitly
// supplied provider, for callers that resolve the provider per request
// (per-admin credentials).
func (o *Orchestrator) TranslateDocumentsWith(ctx context.Context, provider translation.DocumentProvider, docs []translation.Document, opts translation.DocumentOptions) (Result, error) {
	if provider == nil {
		provider = o.provider
	}
	if len(docs) == 0 {
		return Result{}, apperrors.InvalidRequest("at least one file is required")
	}
	if err := language.ValidateFormality(opts.Formality, opts.TargetCode); err != nil {
		return Result{}, err
	}

	container := o.namer.Next(storage.DestinationContainerPrefix)
	results := make([]FileResult, len(docs))

	group := &errgroup.Group{}
	group.SetLimit(o.workers)

	for i := range docs {
		doc := docs[i]
		idx := i
		group.Go(func() error {
			results[idx] = o.translateOne(ctx, provider, container, doc, opts)
			// Sibling pipelines keep running whatever happened here.
			return nil
		})
	}
	_ = group.Wait()

	return Result{Container: container, Files: results}, nil
}

func (o *Orchestrator) translateOne(ctx context.Context, provider translation.DocumentProvider, container string, doc translation.Document, opts translation.DocumentOptions) FileResult {
	blobName := TranslatedBlobName(doc.FileName, opts.TargetCode)
	result := FileResult{FileName: blobName}

	job, err := provider.SubmitDocument(ctx, doc, opts)
	if err != nil {
		o.logger.Error().Err(err).Str("file", doc.FileName).Msg("document submission failed")
		result.Error = apperrors.Message(err)
		return result
	}

	logger := o.logger.With().Str("job_id", job.ID).Str("file", doc.FileName).Logger()

	if _, err := o.poller.Await(ctx, func(ctx context.Context) (poll.Status, error) {
		return provider.DocumentStatus(ctx, job)
	}); err != nil {
		logger.Error().Err(err).Msg("translation job did not complete")
		result.Error = apperrors.Message(err)
		return result
	}

	contents, err := provider.DocumentResult(ctx, job)
	if err != nil {
		logger.Error().Err(err).Msg("translated document download failed")
		result.Error = apperrors.Message(err)
		return result
	}

	grant, err := o.publisher.Publish(ctx, container, storage.Artifact{
		OwningJobID: job.ID,
		FileName:    blobName,
		ContentType: doc.ContentType,
		Contents:    contents,
	})
	if err != nil {
		logger.Error().Err(err).Msg("artifact publication failed")
		result.Error = apperrors.Message(err)
		return result
	}

	logger.Info().Str("container", grant.Container).Msg("translated document published")
	result.AccessURL = grant.URL
	return result
}

// TranslatedBlobName derives the published blob name from the source file
// name and the target code: "report.txt" translated to FR becomes
// "report-fr.txt".
func TranslatedBlobName(fileName, targetCode string) string {
	code := language.NormalizeCode(targetCode)
	ext := path.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	if base == "" {
		base = "document"
	}
	if code == "" {
		return base + ext
	}
	return base + "-" + code + ext
}
