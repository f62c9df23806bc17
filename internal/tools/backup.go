package tools

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ragforge/rag-mcp/internal/adapters/vector"
	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

// ComponentManifest is one backend's entry in a BackupManifest.
type ComponentManifest struct {
	FilePath      string `json:"file_path"`
	FileSize      int64  `json:"file_size"`
	Checksum      string `json:"checksum"`
	RecordCount   int    `json:"record_count,omitempty"`
	ObjectCount   int    `json:"object_count,omitempty"`
	DocumentCount int    `json:"document_count,omitempty"`
	Status        string `json:"status"`
}

// BackupComponents names the four backend components that make up a
// tenant's data footprint.
type BackupComponents struct {
	PostgreSQL  ComponentManifest `json:"postgresql"`
	Faiss       ComponentManifest `json:"faiss"`
	MinIO       ComponentManifest `json:"minio"`
	Meilisearch ComponentManifest `json:"meilisearch"`
}

// BackupManifest is the JSON contract persisted alongside a backup's
// component files.
type BackupManifest struct {
	BackupID   string            `json:"backup_id"`
	TenantID   string            `json:"tenant_id"`
	BackupType string            `json:"backup_type"`
	Timestamp  time.Time         `json:"timestamp"`
	Components BackupComponents  `json:"components"`
	TotalSize  int64             `json:"total_size"`
	Status     string            `json:"status"`
}

func (d *Deps) backupDir(tenantID, backupID string) string {
	return filepath.Join(d.BackupRoot, fmt.Sprintf("backup_%s_%s", tenantID, backupID))
}

func (d *Deps) findBackupDir(backupID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(d.BackupRoot, "backup_*_"+backupID))
	if err != nil || len(matches) == 0 {
		return "", apperrors.NotFound(fmt.Sprintf("backup %q not found", backupID))
	}
	return matches[0], nil
}

func writeJSONComponent(dir, filename string, data interface{}) (ComponentManifest, error) {
	path := filepath.Join(dir, filename)
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return ComponentManifest{Status: "failed"}, err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return ComponentManifest{Status: "failed"}, err
	}
	sum := sha256.Sum256(raw)
	return ComponentManifest{
		FilePath: path,
		FileSize: int64(len(raw)),
		Checksum: hex.EncodeToString(sum[:]),
		Status:   "success",
	}, nil
}

// createBackup dumps every component of a tenant's data to a new
// timestamped directory under d.BackupRoot, tolerating per-component
// failure (recorded as component status "skipped") since backup is
// treated as a best-effort operation rather than all-or-nothing.
func (d *Deps) createBackup(ctx context.Context, tenantID, backupType, label string) (*BackupManifest, error) {
	backupID := newID()
	dir := d.backupDir(tenantID, backupID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-BACKUP-001", err)
	}

	manifest := &BackupManifest{
		BackupID:   backupID,
		TenantID:   tenantID,
		BackupType: backupType,
		Timestamp:  now(),
	}

	// postgresql: documents, tenant configuration, tenant row.
	docs, err := d.Relational.ListAllDocuments(ctx, tenantID)
	if err != nil {
		manifest.Components.PostgreSQL = ComponentManifest{Status: "skipped"}
	} else {
		tenant, tErr := d.Relational.GetTenant(ctx, tenantID)
		cfg, cErr := d.Relational.GetTenantConfiguration(ctx, tenantID)
		dump := map[string]interface{}{"documents": docs}
		if tErr == nil {
			dump["tenant"] = tenant
		}
		if cErr == nil {
			dump["configuration"] = cfg
		}
		comp, wErr := writeJSONComponent(dir, "postgresql.json", dump)
		if wErr != nil {
			comp = ComponentManifest{Status: "skipped"}
		} else {
			comp.RecordCount = len(docs)
		}
		manifest.Components.PostgreSQL = comp
	}

	// faiss (vector index).
	entries, err := d.Vector.Export(ctx, tenantID)
	if err != nil {
		manifest.Components.Faiss = ComponentManifest{Status: "skipped"}
	} else {
		comp, wErr := writeJSONComponent(dir, "vector.json", entries)
		if wErr != nil {
			comp = ComponentManifest{Status: "skipped"}
		} else {
			comp.RecordCount = len(entries)
		}
		manifest.Components.Faiss = comp
	}

	// minio (object store), archived as gzip-tar.
	manifest.Components.MinIO = d.backupObjects(ctx, tenantID, dir)

	// meilisearch (keyword index).
	hits, err := d.Keyword.ExportAll(ctx, tenantID)
	if err != nil {
		manifest.Components.Meilisearch = ComponentManifest{Status: "skipped"}
	} else {
		comp, wErr := writeJSONComponent(dir, "keyword.json", hits)
		if wErr != nil {
			comp = ComponentManifest{Status: "skipped"}
		} else {
			comp.DocumentCount = len(hits)
		}
		manifest.Components.Meilisearch = comp
	}

	manifest.TotalSize = manifest.Components.PostgreSQL.FileSize + manifest.Components.Faiss.FileSize +
		manifest.Components.MinIO.FileSize + manifest.Components.Meilisearch.FileSize

	manifest.Status = "success"
	for _, status := range []string{
		manifest.Components.PostgreSQL.Status, manifest.Components.Faiss.Status,
		manifest.Components.MinIO.Status, manifest.Components.Meilisearch.Status,
	} {
		if status != "success" {
			manifest.Status = "partial"
		}
	}

	manifestPath := filepath.Join(dir, "manifest.json")
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-BACKUP-002", err)
	}
	if err := os.WriteFile(manifestPath, raw, 0o644); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-BACKUP-002", err)
	}
	return manifest, nil
}

func (d *Deps) backupObjects(ctx context.Context, tenantID, dir string) ComponentManifest {
	keys, err := d.Object.ListTenantObjects(ctx, tenantID)
	if err != nil {
		return ComponentManifest{Status: "skipped"}
	}
	path := filepath.Join(dir, "minio.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		return ComponentManifest{Status: "skipped"}
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	count := 0
	for _, key := range keys {
		content, err := d.Object.GetObjectByKey(ctx, tenantID, key)
		if err != nil {
			continue
		}
		hdr := &tar.Header{Name: key, Size: int64(len(content)), Mode: 0o644, ModTime: now()}
		if err := tw.WriteHeader(hdr); err != nil {
			continue
		}
		if _, err := tw.Write(content); err != nil {
			continue
		}
		count++
	}
	tw.Close()
	gz.Close()

	info, err := os.Stat(path)
	size := int64(0)
	if err == nil {
		size = info.Size()
	}
	checksum, _ := sha256File(path)
	return ComponentManifest{FilePath: path, FileSize: size, Checksum: checksum, ObjectCount: count, Status: "success"}
}

func sha256File(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// RagBackupTenantData snapshots every backend component for a tenant.
// Incremental backups are aliased to full with a warning, since no
// incremental changelog is kept.
func (d *Deps) RagBackupTenantData(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	backupType := strOr(args, "backup_type", "full")
	if backupType == "incremental" {
		d.Logger.Warn("incremental backup aliased to full backup", map[string]interface{}{"tenant_id": tenantID})
		backupType = "full"
	}

	manifest, err := d.createBackup(ctx, tenantID, backupType, "")
	if err != nil {
		return nil, err
	}
	return dispatcher.Result{
		"backup_id":   manifest.BackupID,
		"tenant_id":   manifest.TenantID,
		"backup_type": manifest.BackupType,
		"status":      manifest.Status,
		"total_size":  manifest.TotalSize,
	}, nil
}

// RagRestoreTenantData restores a tenant's data from a prior backup,
// taking a safety backup first so a failed restore can be rolled back
// manually if a later component fails partway through.
func (d *Deps) RagRestoreTenantData(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	backupID := str(args, "backup_id")
	if backupID == "" {
		return nil, apperrors.Validation("backup_id", "backup_id is required")
	}
	if !boolOr(args, "confirmation", false) {
		return nil, apperrors.Validation("confirmation", "restore requires confirmation=true")
	}

	dir, err := d.findBackupDir(backupID)
	if err != nil {
		return nil, err
	}
	var manifest BackupManifest
	manifestRaw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, "FR-RESTORE-001", err)
	}
	if err := json.Unmarshal(manifestRaw, &manifest); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-RESTORE-002", err)
	}
	if manifest.TenantID != tenantID {
		return nil, apperrors.Authorization("backup belongs to a different tenant")
	}

	safety, err := d.createBackup(ctx, tenantID, "full", "pre-restore")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-RESTORE-003", err)
	}

	partial := false

	if manifest.Components.Faiss.Status == "success" {
		raw, err := os.ReadFile(manifest.Components.Faiss.FilePath)
		var entries []vector.Entry
		if err == nil {
			err = json.Unmarshal(raw, &entries)
		}
		if err != nil || d.Vector.Rebuild(ctx, tenantID, entries) != nil {
			partial = true
		}
	}

	if manifest.Components.MinIO.Status == "success" {
		if restoreObjects(ctx, d, tenantID, manifest.Components.MinIO.FilePath) != nil {
			partial = true
		}
	}

	if manifest.Components.Meilisearch.Status == "success" {
		raw, err := os.ReadFile(manifest.Components.Meilisearch.FilePath)
		if err != nil {
			partial = true
		} else {
			var hits []struct {
				DocumentID string `json:"DocumentID"`
				ChunkID    string `json:"ChunkID"`
				Snippet    string `json:"Snippet"`
			}
			if err := json.Unmarshal(raw, &hits); err != nil {
				partial = true
			} else {
				for _, h := range hits {
					if err := d.Keyword.IndexChunk(ctx, tenantID, h.DocumentID, h.ChunkID, h.Snippet); err != nil {
						partial = true
					}
				}
			}
		}
	}

	status := "restored"
	if partial {
		status = "partial"
	}
	return dispatcher.Result{
		"tenant_id":        tenantID,
		"backup_id":        backupID,
		"status":           status,
		"safety_backup_id": safety.BackupID,
	}, nil
}

func restoreObjects(ctx context.Context, d *Deps, tenantID, archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		content := make([]byte, hdr.Size)
		if _, err := io.ReadFull(tr, content); err != nil {
			continue
		}
		_ = d.Object.PutObjectByKey(ctx, tenantID, hdr.Name, content)
	}
	return nil
}

// RagRebuildIndex regenerates a tenant's vector index from its stored
// documents, requiring a destructive-operation confirmation code since
// it discards and rewrites the existing index.
func (d *Deps) RagRebuildIndex(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	if str(args, "confirmation_code") != "FR-BACKUP-004" {
		return nil, apperrors.Validation("confirmation_code", `rebuild requires confirmation_code="FR-BACKUP-004"`)
	}

	docs, err := d.Relational.ListAllDocuments(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	const batchSize = 100
	entries := make([]vector.Entry, 0, len(docs))
	for i := 0; i < len(docs); i += batchSize {
		end := i + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		for _, doc := range docs[i:end] {
			if doc.Deleted() {
				continue
			}
			content, err := d.Object.GetDocumentVersion(ctx, tenantID, doc.DocumentID, fmt.Sprintf("%d", doc.VersionNumber))
			if err != nil {
				continue
			}
			vec, err := d.Embedder.Embed(ctx, tenantID, string(content))
			if err != nil {
				continue
			}
			entries = append(entries, vector.Entry{
				DocumentID: doc.DocumentID,
				ChunkID:    doc.DocumentID + ":0",
				Vector:     vec,
			})
		}
	}

	if err := d.Vector.Rebuild(ctx, tenantID, entries); err != nil {
		return nil, err
	}

	expected := len(docs)
	actual, err := d.Vector.Count(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tolerance := math.Ceil(float64(expected) * 0.1)
	drift := math.Abs(float64(actual - expected))
	status := "success"
	if expected > 0 && drift > tolerance {
		status = "drift_detected"
	}

	return dispatcher.Result{
		"tenant_id":        tenantID,
		"status":           status,
		"expected_count":   expected,
		"actual_count":     actual,
	}, nil
}

// RagValidateBackup checks a backup's manifest, component files, and
// checksums for integrity.
func (d *Deps) RagValidateBackup(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	backupID := str(args, "backup_id")
	if backupID == "" {
		return nil, apperrors.Validation("backup_id", "backup_id is required")
	}
	dir, err := d.findBackupDir(backupID)
	if err != nil {
		return nil, err
	}
	manifestRaw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, "FR-VALIDATE-BACKUP-001", err)
	}
	var manifest BackupManifest
	if err := json.Unmarshal(manifestRaw, &manifest); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-VALIDATE-BACKUP-002", err)
	}

	if _, err := resolveTenant(rc, dispatcher.Args{"tenant_id": manifest.TenantID}); err != nil {
		return nil, err
	}

	components := map[string]ComponentManifest{
		"postgresql":  manifest.Components.PostgreSQL,
		"faiss":       manifest.Components.Faiss,
		"minio":       manifest.Components.MinIO,
		"meilisearch": manifest.Components.Meilisearch,
	}
	issues := make([]string, 0)
	for name, comp := range components {
		if comp.Status != "success" {
			issues = append(issues, fmt.Sprintf("%s: not backed up (%s)", name, comp.Status))
			continue
		}
		checksum, err := sha256File(comp.FilePath)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: file missing at %s", name, comp.FilePath))
			continue
		}
		if checksum != comp.Checksum {
			issues = append(issues, fmt.Sprintf("%s: checksum mismatch", name))
		}
	}

	valid := len(issues) == 0
	return dispatcher.Result{
		"backup_id": backupID,
		"valid":     valid,
		"issues":    issues,
	}, nil
}
