package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/ragforge/rag-mcp/internal/adapters/vector"
	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/models"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
	"github.com/ragforge/rag-mcp/internal/resilience"
)

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// RagIngest ingests a document: dedup by content hash,
// snapshot-on-reingest, and compensating deletes across
// object/vector/keyword on any post-commit failure.
func (d *Deps) RagIngest(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}

	content := str(args, "document_content")
	if content == "" {
		return nil, apperrors.Validation("document_content", "document_content must not be empty")
	}
	metadata := stringMap(args, "metadata")
	title, _ := metadata["title"].(string)
	if title == "" {
		return nil, apperrors.Validation("metadata.title", "metadata.title is required")
	}
	hash := contentHash(content)

	if existing, err := d.Relational.GetDocumentByHash(ctx, tenantID, hash); err == nil {
		return dispatcher.Result{
			"document_id":          existing.DocumentID,
			"existing_document_id": existing.DocumentID,
			"status":               "duplicate",
			"indexed_in":           []string{},
			"embedding_dimension":  0,
			"content_hash":         hash,
		}, nil
	} else if apperrors.KindOf(err) != apperrors.KindNotFound {
		return nil, err
	}

	documentID := str(args, "document_id")
	versionNumber := 1
	isReingest := false
	var priorVersion models.DocumentVersion

	if documentID != "" {
		existing, err := d.Relational.GetDocumentIncludingDeleted(ctx, tenantID, documentID)
		switch {
		case err == nil && existing.ContentHash == hash:
			return dispatcher.Result{
				"document_id":          existing.DocumentID,
				"existing_document_id": existing.DocumentID,
				"status":               "duplicate",
				"indexed_in":           []string{},
				"embedding_dimension":  0,
				"content_hash":         hash,
			}, nil
		case err == nil:
			isReingest = true
			versionNumber = existing.VersionNumber + 1
			priorVersion = models.DocumentVersion{
				VersionID:     newID(),
				DocumentID:    existing.DocumentID,
				TenantID:      tenantID,
				VersionNumber: versionNumber,
				ContentHash:   hash,
				CreatedBy:     rc.UserID,
				ChangeSummary: "re-ingested with updated content",
				CreatedAt:     now(),
			}
		case apperrors.KindOf(err) == apperrors.KindNotFound:
			// fresh document under a caller-supplied ID
		default:
			return nil, err
		}
	} else {
		documentID = newID()
	}

	indexedIn := make([]string, 0, 3)
	var compensations []func()
	compensate := func() {
		for i := len(compensations) - 1; i >= 0; i-- {
			compensations[i]()
		}
	}

	versionKey := strconv.Itoa(versionNumber)
	if err := d.Object.PutDocumentVersion(ctx, tenantID, documentID, versionKey, []byte(content)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-INGEST-001", err)
	}
	indexedIn = append(indexedIn, "object")
	compensations = append(compensations, func() {
		if err := d.Object.DeleteDocumentVersion(ctx, tenantID, documentID, versionKey); err != nil {
			d.Logger.Warn("ingest compensation: object delete failed", map[string]interface{}{"error": err.Error()})
		}
	})

	var vec []float32
	err = resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		var embedErr error
		vec, embedErr = d.Embedder.Embed(ctx, tenantID, content)
		return embedErr
	})
	if err != nil {
		compensate()
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-INGEST-002", err)
	}
	dimension := len(vec)

	chunkID := documentID + "-0"
	if err := d.Vector.Upsert(ctx, tenantID, documentID, []vector.Entry{{
		DocumentID: documentID,
		ChunkID:    chunkID,
		Vector:     vec,
	}}); err != nil {
		compensate()
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-INGEST-003", err)
	}
	indexedIn = append(indexedIn, "vector")
	compensations = append(compensations, func() {
		if err := d.Vector.Delete(ctx, tenantID, documentID); err != nil {
			d.Logger.Warn("ingest compensation: vector delete failed", map[string]interface{}{"error": err.Error()})
		}
	})

	if err := d.Keyword.IndexChunk(ctx, tenantID, documentID, chunkID, content); err != nil {
		compensate()
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-INGEST-004", err)
	}
	indexedIn = append(indexedIn, "keyword")
	compensations = append(compensations, func() {
		if err := d.Keyword.DeleteDocument(ctx, tenantID, documentID); err != nil {
			d.Logger.Warn("ingest compensation: keyword delete failed", map[string]interface{}{"error": err.Error()})
		}
	})

	if isReingest {
		doc := models.Document{
			DocumentID:    documentID,
			TenantID:      tenantID,
			Title:         title,
			ContentHash:   hash,
			VersionNumber: versionNumber,
			UpdatedAt:     now(),
		}
		if err := d.Relational.ReingestDocument(ctx, rc, doc, priorVersion); err != nil {
			compensate()
			return nil, apperrors.Wrap(apperrors.KindInternal, "FR-INGEST-005", err)
		}
	} else {
		doc := models.Document{
			DocumentID:    documentID,
			TenantID:      tenantID,
			OwnerUserID:   rc.UserID,
			Title:         title,
			ContentHash:   hash,
			VersionNumber: versionNumber,
			CreatedAt:     now(),
			UpdatedAt:     now(),
		}
		version := models.DocumentVersion{
			VersionID:     newID(),
			DocumentID:    documentID,
			TenantID:      tenantID,
			VersionNumber: versionNumber,
			ContentHash:   hash,
			CreatedBy:     rc.UserID,
			ChangeSummary: "initial ingestion",
			CreatedAt:     now(),
		}
		if err := d.Relational.InsertDocument(ctx, rc, doc, version); err != nil {
			compensate()
			return nil, apperrors.Wrap(apperrors.KindInternal, "FR-INGEST-005", err)
		}
	}

	return dispatcher.Result{
		"document_id":         documentID,
		"status":               "success",
		"indexed_in":           indexedIn,
		"embedding_dimension": dimension,
		"content_hash":        hash,
	}, nil
}

// RagDeleteDocument performs an idempotent soft delete.
func (d *Deps) RagDeleteDocument(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	documentID := str(args, "document_id")
	if documentID == "" {
		return nil, apperrors.Validation("document_id", "document_id is required")
	}

	scopedRC := rc
	scopedRC.TenantID = tenantID

	doc, err := d.Relational.GetDocumentIncludingDeleted(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Deleted() {
		return dispatcher.Result{"document_id": documentID, "status": "already_deleted"}, nil
	}

	if err := d.Relational.SoftDeleteDocument(ctx, scopedRC, documentID); err != nil {
		return nil, err
	}

	if err := d.Vector.Delete(ctx, tenantID, documentID); err != nil {
		d.Logger.Warn("delete document: vector removal failed", map[string]interface{}{"document_id": documentID, "error": err.Error()})
	}
	if err := d.Keyword.DeleteDocument(ctx, tenantID, documentID); err != nil {
		d.Logger.Warn("delete document: keyword removal failed", map[string]interface{}{"document_id": documentID, "error": err.Error()})
	}

	return dispatcher.Result{"document_id": documentID, "status": "deleted"}, nil
}

// RagGetDocument fetches a document's metadata and content. Object-store
// fetch failures degrade to an empty content string rather than failing
// the whole call.
func (d *Deps) RagGetDocument(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	documentID := str(args, "document_id")
	if documentID == "" {
		return nil, apperrors.Validation("document_id", "document_id is required")
	}

	scopedRC := rc
	scopedRC.TenantID = tenantID
	doc, err := d.Relational.GetDocument(ctx, scopedRC, documentID)
	if err != nil {
		return nil, err
	}

	content := ""
	if raw, err := d.Object.GetDocumentVersion(ctx, tenantID, documentID, strconv.Itoa(doc.VersionNumber)); err != nil {
		d.Logger.Warn("get document: object fetch failed", map[string]interface{}{"document_id": documentID, "error": err.Error()})
	} else {
		content = string(raw)
	}

	return dispatcher.Result{
		"document_id":    doc.DocumentID,
		"title":          doc.Title,
		"metadata":       map[string]interface{}{},
		"version_number": doc.VersionNumber,
		"content":        content,
	}, nil
}

// RagListDocuments returns a paginated listing, filtered in-application
// by a case-insensitive title substring. Document type, source, and
// date-range filters are not applied.
func (d *Deps) RagListDocuments(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	limit := intOr(args, "limit", 20)
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	offset := intOr(args, "offset", 0)
	if offset < 0 {
		return nil, apperrors.Validation("offset", "offset must be >= 0")
	}

	scopedRC := rc
	scopedRC.TenantID = tenantID
	docs, err := d.Relational.ListDocuments(ctx, scopedRC, limit, offset)
	if err != nil {
		return nil, err
	}

	titleSubstring := strings.ToLower(str(args, "title"))
	filtered := make([]dispatcher.Result, 0, len(docs))
	for _, doc := range docs {
		if titleSubstring != "" && !strings.Contains(strings.ToLower(doc.Title), titleSubstring) {
			continue
		}
		filtered = append(filtered, dispatcher.Result{
			"document_id":    doc.DocumentID,
			"title":          doc.Title,
			"version_number": doc.VersionNumber,
			"created_at":     doc.CreatedAt,
			"updated_at":     doc.UpdatedAt,
		})
	}

	return dispatcher.Result{"documents": filtered, "count": len(filtered)}, nil
}

// RagSearch runs hybrid search, hydrating hits with relational metadata
// and an optional personalization reorder that degrades silently on
// failure.
func (d *Deps) RagSearch(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	query := str(args, "query")
	if query == "" {
		return nil, apperrors.Validation("query", "query must not be empty")
	}
	limit := intOr(args, "limit", 10)
	if err := validateLimit(limit); err != nil {
		return nil, err
	}

	outcome, err := d.Hybrid.Search(ctx, tenantID, query, limit)
	if err != nil {
		return nil, err
	}

	scopedRC := rc
	scopedRC.TenantID = tenantID

	results := make([]dispatcher.Result, 0, len(outcome.Hits))
	for _, hit := range outcome.Hits {
		doc, err := d.Relational.GetDocument(ctx, scopedRC, hit.DocumentID)
		if err != nil {
			continue
		}
		results = append(results, dispatcher.Result{
			"document_id": doc.DocumentID,
			"title":       doc.Title,
			"metadata":    map[string]interface{}{},
			"source":      "document",
			"timestamp":   doc.UpdatedAt,
			"snippet":     titleSnippet(doc.Title),
			"score":       hit.Score,
		})
	}

	if boolOr(args, "enable_personalization", false) && rc.UserID != "" {
		if reordered, err := d.personalize(ctx, tenantID, rc.UserID, results); err == nil {
			results = reordered
		} else {
			d.Logger.Warn("search personalization failed, falling back to unpersonalized order", map[string]interface{}{"error": err.Error()})
		}
	}

	return dispatcher.Result{
		"results":            results,
		"search_mode":        string(outcome.Mode),
		"vector_succeeded":   outcome.VectorSucceeded,
		"keyword_succeeded":  outcome.KeywordSucceeded,
		"fallback_triggered": outcome.FallbackTriggered,
	}, nil
}

func titleSnippet(title string) string {
	const max = 200
	if len(title) <= max {
		return title
	}
	return title[:max] + "…"
}

// personalize reorders results towards documents the user has
// previously referenced in their memory records, a lightweight stand-in
// for the original's dedicated personalization sub-service.
func (d *Deps) personalize(ctx context.Context, tenantID, userID string, results []dispatcher.Result) ([]dispatcher.Result, error) {
	records, err := d.Relational.ListUserMemory(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	boosted := make(map[string]bool, len(records))
	for _, rec := range records {
		if docID, ok := rec.Value["document_id"].(string); ok {
			boosted[docID] = true
		}
	}

	head := make([]dispatcher.Result, 0, len(results))
	tail := make([]dispatcher.Result, 0, len(results))
	for _, r := range results {
		if id, _ := r["document_id"].(string); boosted[id] {
			head = append(head, r)
		} else {
			tail = append(tail, r)
		}
	}
	return append(head, tail...), nil
}
