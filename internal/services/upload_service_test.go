package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/database/testutil"
	"github.com/charlesng35/stomanager/internal/ingest"
	"github.com/charlesng35/stomanager/internal/models"
	apperrors "github.com/charlesng35/stomanager/pkg/errors"
)

func newUploadServiceForTest(t *testing.T, opts ...UploadOption) (*UploadService, *gorm.DB, *models.Account) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	uploader := seedAccount(t, db, "uploader@example.com", models.RoleSuperUser)
	svc, err := NewUploadService(db, opts...)
	require.NoError(t, err)
	return svc, db, uploader
}

func csvInput(name, body, uploadedBy string) UploadInput {
	return UploadInput{
		FileName:    name,
		ContentType: "text/csv",
		Size:        int64(len(body)),
		Reader:      strings.NewReader(body),
		UploadedBy:  uploadedBy,
	}
}

func TestUploadIngestSample(t *testing.T) {
	svc, db, uploader := newUploadServiceForTest(t, WithUploadBatchSize(2))
	ctx := context.Background()

	sample := ingest.SampleCSV()
	result, err := svc.Ingest(ctx, UploadInput{
		FileName:   ingest.SampleFileName,
		Size:       int64(len(sample)),
		Reader:     bytes.NewReader(sample),
		UploadedBy: uploader.ID,
	})
	require.NoError(t, err)
	require.Equal(t, 5, result.TotalRecords)
	require.Equal(t, 5, result.SuccessfulRecords)
	require.Zero(t, result.FailedRecords)
	require.Empty(t, result.Errors)
	require.True(t, strings.HasPrefix(result.UploadID, "upload_"))

	var rows int64
	require.NoError(t, db.Model(&models.SOHRecord{}).Where("upload_id = ?", result.UploadID).Count(&rows).Error)
	require.Equal(t, int64(5), rows)

	var forms []models.FormProgress
	require.NoError(t, db.Order("form_no").Find(&forms).Error)
	require.Len(t, forms, 3)
	require.Equal(t, "STO-2024-001", forms[0].FormNo)
	require.Equal(t, models.FormStatusPrinted, forms[0].Status)
	require.Equal(t, uploader.ID, forms[0].UpdatedBy)

	progress, err := svc.Progress(ctx, result.UploadID, uploader.ID)
	require.NoError(t, err)
	require.Equal(t, models.UploadStatusCompleted, progress.Status)
	require.Equal(t, 100, progress.ProgressPercentage)
	require.NotNil(t, progress.CompletedAt)

	// A second upload of the same forms leaves existing progress untouched.
	require.NoError(t, db.Model(&models.FormProgress{}).Where("form_no = ?", "STO-2024-001").
		Update("status", models.FormStatusVerified).Error)
	_, err = svc.Ingest(ctx, UploadInput{
		FileName:   ingest.SampleFileName,
		Size:       int64(len(sample)),
		Reader:     bytes.NewReader(sample),
		UploadedBy: uploader.ID,
	})
	require.NoError(t, err)

	var first models.FormProgress
	require.NoError(t, db.Take(&first, "form_no = ?", "STO-2024-001").Error)
	require.Equal(t, models.FormStatusVerified, first.Status)
}

func TestUploadIngestPartialFailures(t *testing.T) {
	svc, db, uploader := newUploadServiceForTest(t)
	ctx := context.Background()

	body := "FormNo,Storerkey,SKU,Loc,Lot,ID,Qty_OnHand,Qty_Allocated,Qty_Available\n" +
		"F1,S1,SKU1,L1,LOT1,I1,5,1,4\n" +
		"F2,S1,SKU2,L2,LOT2,I2,lots,1,4\n" +
		"F3,S1,SKU3,L3,LOT3,,5,1,4\n"

	result, err := svc.Ingest(ctx, csvInput("partial.csv", body, uploader.ID))
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalRecords)
	require.Equal(t, 1, result.SuccessfulRecords)
	require.Equal(t, 2, result.FailedRecords)
	require.Equal(t, []string{
		"Row 3: Qty_OnHand must be a valid number",
		"Row 4: ID is required",
	}, result.Errors)

	var log models.UploadLog
	require.NoError(t, db.Take(&log, "id = ?", result.UploadID).Error)
	require.Equal(t, models.UploadStatusCompletedWithErrors, log.Status)
	require.Len(t, log.Errors, 2)

	var forms int64
	require.NoError(t, db.Model(&models.FormProgress{}).Count(&forms).Error)
	require.Equal(t, int64(1), forms)
}

func TestUploadRejectsMissingColumnBeforeInsert(t *testing.T) {
	svc, db, uploader := newUploadServiceForTest(t)

	body := "FormNo,Storerkey,SKU,Loc,Lot,ID,Qty_Allocated,Qty_Available\nF1,S1,SKU1,L1,LOT1,I1,1,4\n"
	_, err := svc.Ingest(context.Background(), csvInput("bad.csv", body, uploader.ID))
	require.True(t, ingest.IsParseError(err))
	require.Contains(t, err.Error(), "Missing required columns: Qty_OnHand")

	for _, model := range []any{&models.UploadLog{}, &models.SOHRecord{}, &models.FormProgress{}} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		require.Zero(t, count)
	}
}

func TestUploadRejectsTypeSizeAndEmpty(t *testing.T) {
	svc, _, uploader := newUploadServiceForTest(t, WithUploadMaxSize(64))
	ctx := context.Background()

	_, err := svc.Ingest(ctx, UploadInput{
		FileName:    "notes.txt",
		ContentType: "text/plain",
		Reader:      strings.NewReader("x"),
		UploadedBy:  uploader.ID,
	})
	require.ErrorIs(t, err, ingest.ErrInvalidFileType)

	big := strings.Repeat("a", 65)
	_, err = svc.Ingest(ctx, csvInput("big.csv", big, uploader.ID))
	require.ErrorIs(t, err, ingest.ErrFileTooLarge)

	blank := "FormNo,Storerkey,SKU,Loc,Lot,ID,Qty_OnHand,Qty_Allocated,Qty_Available\n,,,,,,,,\n"
	svc.maxSize = ingest.DefaultMaxSize
	_, err = svc.Ingest(ctx, csvInput("blank.csv", blank, uploader.ID))
	require.ErrorIs(t, err, ErrNoRecords)
}

func TestUploadProgressScopedToUploader(t *testing.T) {
	svc, db, uploader := newUploadServiceForTest(t)
	ctx := context.Background()
	other := seedAccount(t, db, "other@example.com", models.RoleSuperUser)

	require.NoError(t, db.Create(&models.UploadLog{
		ID:                "upload_manual",
		FileName:          "manual.csv",
		TotalRecords:      3,
		SuccessfulRecords: 1,
		FailedRecords:     1,
		Status:            models.UploadStatusProcessing,
		UploadedBy:        uploader.ID,
	}).Error)

	progress, err := svc.Progress(ctx, "upload_manual", uploader.ID)
	require.NoError(t, err)
	require.Equal(t, 67, progress.ProgressPercentage)
	require.Nil(t, progress.CompletedAt)

	_, err = svc.Progress(ctx, "upload_manual", other.ID)
	require.ErrorIs(t, err, ErrUploadNotFound)

	_, err = svc.Progress(ctx, "missing", uploader.ID)
	require.ErrorIs(t, err, ErrUploadNotFound)
	require.ErrorIs(t, err, apperrors.New("UPLOAD_NOT_FOUND", "", 0))
}

func TestProgressPercentage(t *testing.T) {
	require.Equal(t, 0, progressPercentage(0, 0, 0))
	require.Equal(t, 50, progressPercentage(1, 0, 2))
	require.Equal(t, 33, progressPercentage(1, 0, 3))
	require.Equal(t, 100, progressPercentage(4, 1, 5))
}
