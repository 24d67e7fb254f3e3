package httpapi

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/polylate/polylate/internal/apperrors"
	"github.com/polylate/polylate/internal/language"
	"github.com/polylate/polylate/internal/pipeline"
	"github.com/polylate/polylate/internal/poll"
	"github.com/polylate/polylate/internal/storage"
	"github.com/polylate/polylate/internal/translation"
)

const maxUploadBytes = 64 << 20

type textTranslateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
	SourceLanguage string `json:"source_language"`
	Formality      string `json:"formality"`
	AdminID        string `json:"admin_id"`
}

type textTranslateResponse struct {
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
	Provider       string `json:"provider"`
	LatencyMs      int64  `json:"latency_ms"`
}

func (s *Server) handleTranslateText(c echo.Context) error {
	var req textTranslateRequest
	if err := c.Bind(&req); err != nil {
		return failInvalid(c, "request body must be JSON")
	}
	if strings.TrimSpace(req.Text) == "" {
		return failInvalid(c, "text is required")
	}

	targetCode, sourceCode, err := resolveStaticLanguages(req.TargetLanguage, req.SourceLanguage)
	if err != nil {
		return failWithError(c, err)
	}
	if err := language.ValidateFormality(req.Formality, targetCode); err != nil {
		return failWithError(c, err)
	}

	client := s.deeplFor(c.Request().Context(), req.AdminID)
	resp, err := client.TranslateText(c.Request().Context(), translation.TextRequest{
		Text:       req.Text,
		SourceCode: sourceCode,
		TargetCode: targetCode,
		Formality:  req.Formality,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("text translation failed")
		return failWithError(c, err)
	}

	return success(c, textTranslateResponse{
		TranslatedText: resp.Text,
		SourceLanguage: resp.SourceCode,
		TargetLanguage: resp.TargetCode,
		Provider:       resp.ProviderName,
		LatencyMs:      resp.LatencyMs,
	})
}

func (s *Server) handleTranslateTextAzure(c echo.Context) error {
	var req textTranslateRequest
	if err := c.Bind(&req); err != nil {
		return failInvalid(c, "request body must be JSON")
	}
	if strings.TrimSpace(req.Text) == "" {
		return failInvalid(c, "text is required")
	}
	if strings.TrimSpace(req.TargetLanguage) == "" {
		return failInvalid(c, "target_language is required")
	}

	adminID, err := s.adminID(c, req.AdminID)
	if err != nil {
		return failWithError(c, err)
	}
	client, err := s.azureFor(c.Request().Context(), adminID)
	if err != nil {
		return failWithError(c, err)
	}

	ctx := c.Request().Context()
	targetCode, ok, err := client.CodeForName(ctx, req.TargetLanguage)
	if err != nil {
		return failWithError(c, err)
	}
	if !ok {
		return failInvalid(c, fmt.Sprintf("unsupported target language %q", req.TargetLanguage))
	}

	sourceCode := ""
	if strings.TrimSpace(req.SourceLanguage) != "" {
		sourceCode, ok, err = client.CodeForName(ctx, req.SourceLanguage)
		if err != nil {
			return failWithError(c, err)
		}
		if !ok {
			return failInvalid(c, fmt.Sprintf("unsupported source language %q", req.SourceLanguage))
		}
	}

	resp, err := client.TranslateText(ctx, translation.TextRequest{
		Text:       req.Text,
		SourceCode: sourceCode,
		TargetCode: targetCode,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("admin_id", adminID).Msg("azure text translation failed")
		return failWithError(c, err)
	}

	return success(c, textTranslateResponse{
		TranslatedText: resp.Text,
		SourceLanguage: resp.SourceCode,
		TargetLanguage: resp.TargetCode,
		Provider:       resp.ProviderName,
		LatencyMs:      resp.LatencyMs,
	})
}

type documentsResponse struct {
	Container string                `json:"container"`
	Files     []pipeline.FileResult `json:"files"`
}

func (s *Server) handleTranslateDocument(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return failInvalid(c, "file is required")
	}
	doc, err := readUpload(fileHeader)
	if err != nil {
		return failWithError(c, err)
	}

	opts, err := s.documentOptions(c)
	if err != nil {
		return failWithError(c, err)
	}

	provider := s.deeplFor(c.Request().Context(), c.FormValue("admin_id"))
	result, err := s.orchestrator.TranslateDocumentsWith(c.Request().Context(), provider, []translation.Document{doc}, opts)
	if err != nil {
		return failWithError(c, err)
	}

	file := result.Files[0]
	if !file.Succeeded() {
		return internalError(c, file.Error)
	}
	return success(c, map[string]any{
		"container":  result.Container,
		"file_name":  file.FileName,
		"access_url": file.AccessURL,
	})
}

func (s *Server) handleTranslateDocuments(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return failInvalid(c, "multipart form is required")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		return failInvalid(c, "at least one file is required")
	}

	docs := make([]translation.Document, 0, len(headers))
	for _, header := range headers {
		doc, err := readUpload(header)
		if err != nil {
			return failWithError(c, err)
		}
		docs = append(docs, doc)
	}

	opts, err := s.documentOptions(c)
	if err != nil {
		return failWithError(c, err)
	}

	provider := s.deeplFor(c.Request().Context(), c.FormValue("admin_id"))

	// An uploaded glossary applies to every file in the batch.
	if glossaryHeaders := form.File["glossary_file"]; len(glossaryHeaders) > 0 {
		glossaryDoc, err := readUpload(glossaryHeaders[0])
		if err != nil {
			return failWithError(c, err)
		}
		if opts.SourceCode == "" {
			return failInvalid(c, "source_language is required when a glossary file is provided")
		}
		glossary, err := provider.CreateGlossary(c.Request().Context(),
			c.FormValue("glossary_name"), opts.SourceCode, opts.TargetCode,
			glossaryDoc.FileName, glossaryDoc.Content)
		if err != nil {
			return failWithError(c, err)
		}
		opts.GlossaryID = glossary.ID
	}

	result, err := s.orchestrator.TranslateDocumentsWith(c.Request().Context(), provider, docs, opts)
	if err != nil {
		return failWithError(c, err)
	}
	return success(c, documentsResponse{Container: result.Container, Files: result.Files})
}

func (s *Server) handleTranslateDocumentsAzure(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return failInvalid(c, "multipart form is required")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		return failInvalid(c, "at least one file is required")
	}

	adminID, err := s.adminID(c, c.FormValue("admin_id"))
	if err != nil {
		return failWithError(c, err)
	}
	client, err := s.azureFor(c.Request().Context(), adminID)
	if err != nil {
		return failWithError(c, err)
	}

	ctx := c.Request().Context()
	targetName := c.FormValue("target_language")
	if strings.TrimSpace(targetName) == "" {
		return failInvalid(c, "target_language is required")
	}
	targetCode, ok, err := client.CodeForName(ctx, targetName)
	if err != nil {
		return failWithError(c, err)
	}
	if !ok {
		return failInvalid(c, fmt.Sprintf("unsupported target language %q", targetName))
	}

	sourceCode := ""
	if sourceName := c.FormValue("source_language"); strings.TrimSpace(sourceName) != "" {
		sourceCode, ok, err = client.CodeForName(ctx, sourceName)
		if err != nil {
			return failWithError(c, err)
		}
		if !ok {
			return failInvalid(c, fmt.Sprintf("unsupported source language %q", sourceName))
		}
	}

	sourceContainer := s.namer.Next(storage.SourceContainerPrefix)
	targetContainer := s.namer.Next(storage.DestinationContainerPrefix)
	for _, name := range []string{sourceContainer, targetContainer} {
		if err := s.store.EnsureContainer(ctx, name); err != nil {
			return failWithError(c, apperrors.Wrap(apperrors.KindPublishFailed, "prepare batch container", err))
		}
	}

	blobNames := make([]string, 0, len(headers))
	for _, header := range headers {
		doc, err := readUpload(header)
		if err != nil {
			return failWithError(c, err)
		}
		if err := s.store.Upload(ctx, sourceContainer, doc.FileName, doc.ContentType, doc.Content); err != nil {
			return failWithError(c, apperrors.Wrap(apperrors.KindPublishFailed, "upload source document", err))
		}
		blobNames = append(blobNames, doc.FileName)
	}

	// An uploaded glossary goes to its own container; the batch service reads
	// it through a signed URL.
	var batchGlossary *translation.BatchGlossary
	if glossaryHeaders := form.File["glossary_file"]; len(glossaryHeaders) > 0 {
		glossaryDoc, err := readUpload(glossaryHeaders[0])
		if err != nil {
			return failWithError(c, err)
		}
		glossaryContainer := s.namer.Next(storage.GlossaryContainerPrefix)
		grant, err := s.publisher.Publish(ctx, glossaryContainer, storage.Artifact{
			FileName:    glossaryDoc.FileName,
			ContentType: glossaryDoc.ContentType,
			Contents:    glossaryDoc.Content,
		})
		if err != nil {
			return failWithError(c, err)
		}
		batchGlossary = &translation.BatchGlossary{
			URL:    grant.URL,
			Format: glossaryFormat(glossaryDoc.FileName),
		}
	}

	job, err := client.SubmitBatch(ctx, translation.BatchInput{
		SourceURL:  s.store.ContainerURL(sourceContainer),
		TargetURL:  s.store.ContainerURL(targetContainer),
		SourceCode: sourceCode,
		TargetCode: targetCode,
		Glossary:   batchGlossary,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("admin_id", adminID).Msg("azure batch submission failed")
		return failWithError(c, err)
	}

	if _, err := s.poller.Await(ctx, func(ctx context.Context) (poll.Status, error) {
		return client.BatchStatus(ctx, job)
	}); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("azure batch did not complete")
		return failWithError(c, err)
	}

	// Batch outputs keep the source blob names in the target container.
	files := make([]pipeline.FileResult, 0, len(blobNames))
	for _, name := range blobNames {
		url, err := s.store.SignedURL(ctx, targetContainer, name, s.publisher.AccessTTL())
		if err != nil {
			files = append(files, pipeline.FileResult{FileName: name, Error: "failed to sign access url"})
			continue
		}
		files = append(files, pipeline.FileResult{FileName: name, AccessURL: url})
	}

	return success(c, documentsResponse{Container: targetContainer, Files: files})
}

func (s *Server) handleCreateGlossary(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return failInvalid(c, "file is required")
	}
	doc, err := readUpload(fileHeader)
	if err != nil {
		return failWithError(c, err)
	}

	targetCode, sourceCode, err := resolveStaticLanguages(c.FormValue("target_language"), c.FormValue("source_language"))
	if err != nil {
		return failWithError(c, err)
	}
	if sourceCode == "" {
		return failInvalid(c, "source_language is required")
	}

	client := s.deeplFor(c.Request().Context(), c.FormValue("admin_id"))
	glossary, err := client.CreateGlossary(c.Request().Context(),
		c.FormValue("name"), sourceCode, targetCode, doc.FileName, doc.Content)
	if err != nil {
		s.logger.Error().Err(err).Msg("glossary creation failed")
		return failWithError(c, err)
	}

	return successWithStatus(c, http.StatusCreated, map[string]any{
		"glossary_id": glossary.ID,
		"name":        glossary.Name,
		"entry_count": glossary.EntryCount,
	})
}

// documentOptions reads the shared translation fields from the form and
// resolves language names to codes.
func (s *Server) documentOptions(c echo.Context) (translation.DocumentOptions, error) {
	targetCode, sourceCode, err := resolveStaticLanguages(c.FormValue("target_language"), c.FormValue("source_language"))
	if err != nil {
		return translation.DocumentOptions{}, err
	}
	return translation.DocumentOptions{
		TargetCode: targetCode,
		SourceCode: sourceCode,
		Formality:  c.FormValue("formality"),
		GlossaryID: c.FormValue("glossary_id"),
	}, nil
}

// glossaryFormat derives the batch glossary format from the file name
// extension. Unrecognized extensions fall back to csv.
func glossaryFormat(fileName string) string {
	if strings.EqualFold(path.Ext(fileName), ".tsv") {
		return "tsv"
	}
	return "csv"
}

// resolveStaticLanguages maps request language names through the static
// table. The source is optional; the target is not.
func resolveStaticLanguages(targetName, sourceName string) (targetCode, sourceCode string, err error) {
	if strings.TrimSpace(targetName) == "" {
		return "", "", apperrors.InvalidRequest("target_language is required")
	}
	targetCode, ok := language.Code(targetName)
	if !ok {
		return "", "", apperrors.InvalidRequest("unsupported target language %q", targetName)
	}
	if strings.TrimSpace(sourceName) != "" {
		sourceCode, ok = language.Code(sourceName)
		if !ok {
			return "", "", apperrors.InvalidRequest("unsupported source language %q", sourceName)
		}
	}
	return targetCode, sourceCode, nil
}

func readUpload(header *multipart.FileHeader) (translation.Document, error) {
	if header.Size > maxUploadBytes {
		return translation.Document{}, apperrors.InvalidRequest("file %s exceeds the upload size limit", header.Filename)
	}

	file, err := header.Open()
	if err != nil {
		return translation.Document{}, apperrors.Wrap(apperrors.KindInvalidRequest, "open uploaded file", err)
	}
	defer file.Close()

	contents, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return translation.Document{}, apperrors.Wrap(apperrors.KindInvalidRequest, "read uploaded file", err)
	}
	if len(contents) > maxUploadBytes {
		return translation.Document{}, apperrors.InvalidRequest("file %s exceeds the upload size limit", header.Filename)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return translation.Document{
		FileName:    header.Filename,
		ContentType: contentType,
		Content:     contents,
	}, nil
}
