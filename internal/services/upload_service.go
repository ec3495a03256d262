package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/stomanager/internal/ingest"
	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/logger"
	"github.com/charlesng35/stomanager/pkg/metrics"
)

const defaultUploadBatchSize = 200

// UploadInput describes one SOH file handed to the ingester.
type UploadInput struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
	UploadedBy  string
	IPAddress   string
	UserAgent   string
}

// UploadResult summarises an ingestion run.
type UploadResult struct {
	FileName          string   `json:"fileName"`
	TotalRecords      int      `json:"totalRecords"`
	SuccessfulRecords int      `json:"successfulRecords"`
	FailedRecords     int      `json:"failedRecords"`
	Errors            []string `json:"errors"`
	UploadID          string   `json:"uploadId"`
}

// UploadProgress is the caller-visible state of an upload log.
type UploadProgress struct {
	UploadID           string              `json:"uploadId"`
	FileName           string              `json:"fileName"`
	FileSize           int64               `json:"fileSize"`
	TotalRecords       int                 `json:"totalRecords"`
	SuccessfulRecords  int                 `json:"successfulRecords"`
	FailedRecords      int                 `json:"failedRecords"`
	Status             models.UploadStatus `json:"status"`
	CreatedAt          time.Time           `json:"createdAt"`
	CompletedAt        *time.Time          `json:"completedAt"`
	ProgressPercentage int                 `json:"progressPercentage"`
}

// UploadOption customises the UploadService.
type UploadOption func(*UploadService)

// WithUploadAudit attaches the audit trail.
func WithUploadAudit(audit *AuditService) UploadOption {
	return func(s *UploadService) {
		s.audit = audit
	}
}

// WithUploadMaxSize overrides the accepted file size.
func WithUploadMaxSize(max int64) UploadOption {
	return func(s *UploadService) {
		if max > 0 {
			s.maxSize = max
		}
	}
}

// WithUploadBatchSize sets how many rows are inserted per statement.
func WithUploadBatchSize(size int) UploadOption {
	return func(s *UploadService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithUploadClock injects a custom time source.
func WithUploadClock(clock func() time.Time) UploadOption {
	return func(s *UploadService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// UploadService ingests stock-on-hand files and tracks their progress.
type UploadService struct {
	db        *gorm.DB
	audit     *AuditService
	maxSize   int64
	batchSize int
	now       func() time.Time
}

// NewUploadService constructs an UploadService.
func NewUploadService(db *gorm.DB, opts ...UploadOption) (*UploadService, error) {
	if db == nil {
		return nil, errors.New("upload service: db is required")
	}
	svc := &UploadService{
		db:        db,
		maxSize:   ingest.DefaultMaxSize,
		batchSize: defaultUploadBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// MaxSize reports the largest accepted upload in bytes.
func (s *UploadService) MaxSize() int64 {
	return s.maxSize
}

// Ingest parses the file, stores every valid row and seeds form progress for the
// forms it introduced. A file with missing required columns is rejected before
// anything is written.
func (s *UploadService) Ingest(ctx context.Context, input UploadInput) (*UploadResult, error) {
	ctx = ensureContext(ctx)

	if input.Reader == nil {
		return nil, errors.New("upload service: reader is required")
	}
	if strings.TrimSpace(input.UploadedBy) == "" {
		return nil, errors.New("upload service: uploader is required")
	}

	format, err := ingest.DetectFormat(input.FileName, input.ContentType)
	if err != nil {
		return nil, err
	}
	if err := ingest.CheckSize(input.Size, s.maxSize); err != nil {
		return nil, err
	}

	table, err := ingest.Parse(io.LimitReader(input.Reader, s.maxSize+1), format)
	if err != nil {
		return nil, err
	}

	parsed := ingest.Validate(table)
	if parsed.Total == 0 {
		return nil, ErrNoRecords
	}

	uploadLog := models.UploadLog{
		ID:           "upload_" + ksuid.New().String(),
		FileName:     input.FileName,
		FileSize:     input.Size,
		TotalRecords: parsed.Total,
		Status:       models.UploadStatusProcessing,
		UploadedBy:   input.UploadedBy,
		CreatedAt:    s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&uploadLog).Error; err != nil {
		return nil, storeError(err, ErrLogCreationFailed)
	}

	result := &UploadResult{
		FileName:      input.FileName,
		TotalRecords:  parsed.Total,
		FailedRecords: parsed.Failed,
		Errors:        append([]string{}, parsed.Errors...),
		UploadID:      uploadLog.ID,
	}

	inserted := s.insertRows(ctx, uploadLog.ID, input.UploadedBy, parsed.Valid, result)

	status := models.UploadStatusCompleted
	if result.FailedRecords > 0 {
		status = models.UploadStatusCompletedWithErrors
	}
	completedAt := s.now()
	if err := s.db.WithContext(ctx).Model(&models.UploadLog{}).
		Where("id = ?", uploadLog.ID).
		Updates(map[string]any{
			"successful_records": result.SuccessfulRecords,
			"failed_records":     result.FailedRecords,
			"errors":             datatypes.NewJSONSlice(result.Errors),
			"status":             status,
			"completed_at":       completedAt,
		}).Error; err != nil {
		return nil, storeError(fmt.Errorf("upload service: finalise log: %w", err), nil)
	}

	s.seedFormProgress(ctx, input.UploadedBy, inserted)

	metrics.UploadRows.WithLabelValues("success").Add(float64(result.SuccessfulRecords))
	metrics.UploadRows.WithLabelValues("failure").Add(float64(result.FailedRecords))

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:    stringPtr(input.UploadedBy),
		Action:    AuditActionUploadIngest,
		Resource:  uploadLog.ID,
		Result:    AuditResultSuccess,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Metadata: map[string]any{
			"file_name":  input.FileName,
			"total":      result.TotalRecords,
			"successful": result.SuccessfulRecords,
			"failed":     result.FailedRecords,
		},
	})

	return result, nil
}

// insertRows writes rows in batches. A failing batch is retried row by row so the
// offending lines can be reported individually. It returns the rows stored.
func (s *UploadService) insertRows(ctx context.Context, uploadID, uploadedBy string, rows []ingest.Row, result *UploadResult) []ingest.Row {
	stored := make([]ingest.Row, 0, len(rows))

	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		records := make([]models.SOHRecord, len(chunk))
		for i, row := range chunk {
			records[i] = row.Record
			records[i].UploadID = uploadID
			records[i].UploadedBy = uploadedBy
		}

		if err := s.db.WithContext(ctx).CreateInBatches(&records, len(records)).Error; err == nil {
			stored = append(stored, chunk...)
			result.SuccessfulRecords += len(chunk)
			continue
		}

		for i := range records {
			record := records[i]
			if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
				logger.WithModule("upload").Warn("failed to insert SOH row",
					zap.String("upload_id", uploadID),
					zap.Int("row", chunk[i].Number),
					zap.Error(err),
				)
				result.FailedRecords++
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Database insertion failed", chunk[i].Number))
				continue
			}
			stored = append(stored, chunk[i])
			result.SuccessfulRecords++
		}
	}
	return stored
}

func (s *UploadService) seedFormProgress(ctx context.Context, uploadedBy string, rows []ingest.Row) {
	seen := make(map[string]struct{})
	for _, row := range rows {
		formNo := row.Record.FormNo
		if _, ok := seen[formNo]; ok {
			continue
		}
		seen[formNo] = struct{}{}

		progress := models.FormProgress{
			FormNo:    formNo,
			Status:    models.FormStatusPrinted,
			UpdatedBy: uploadedBy,
		}
		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "form_no"}}, DoNothing: true}).
			Create(&progress).Error
		if err != nil {
			logger.WithModule("upload").Warn("failed to seed form progress",
				zap.String("form_no", formNo),
				zap.Error(err),
			)
		}
	}
}

// Progress reports the state of an upload owned by uploaderID.
func (s *UploadService) Progress(ctx context.Context, uploadID, uploaderID string) (*UploadProgress, error) {
	ctx = ensureContext(ctx)

	uploadID = strings.TrimSpace(uploadID)
	if uploadID == "" {
		return nil, ErrUploadNotFound
	}

	var log models.UploadLog
	err := s.db.WithContext(ctx).
		Where("id = ? AND uploaded_by = ?", uploadID, uploaderID).
		Take(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, storeError(fmt.Errorf("upload service: load log: %w", err), nil)
	}

	return &UploadProgress{
		UploadID:           log.ID,
		FileName:           log.FileName,
		FileSize:           log.FileSize,
		TotalRecords:       log.TotalRecords,
		SuccessfulRecords:  log.SuccessfulRecords,
		FailedRecords:      log.FailedRecords,
		Status:             log.Status,
		CreatedAt:          log.CreatedAt,
		CompletedAt:        log.CompletedAt,
		ProgressPercentage: progressPercentage(log.SuccessfulRecords, log.FailedRecords, log.TotalRecords),
	}, nil
}

func progressPercentage(successful, failed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(successful+failed) / float64(total) * 100))
}
