package models

import (
	"time"

	"gorm.io/datatypes"
)

// UploadStatus tracks the lifecycle of an ingestion job.
type UploadStatus string

const (
	UploadStatusProcessing          UploadStatus = "processing"
	UploadStatusCompleted           UploadStatus = "completed"
	UploadStatusCompletedWithErrors UploadStatus = "completed_with_errors"
	UploadStatusFailed              UploadStatus = "failed"
)

// UploadLog records one SOH file ingestion.
type UploadLog struct {
	ID                string                      `gorm:"primaryKey;size:64" json:"id"`
	FileName          string                      `gorm:"not null" json:"file_name"`
	FileSize          int64                       `json:"file_size"`
	TotalRecords      int                         `json:"total_records"`
	SuccessfulRecords int                         `json:"successful_records"`
	FailedRecords     int                         `json:"failed_records"`
	Status            UploadStatus                `gorm:"type:varchar(32);not null;index" json:"status"`
	Errors            datatypes.JSONSlice[string] `json:"errors,omitempty"`
	UploadedBy        string                      `gorm:"type:uuid;not null;index" json:"uploaded_by"`
	CreatedAt         time.Time                   `gorm:"index" json:"created_at"`
	CompletedAt       *time.Time                  `json:"completed_at"`
}

// SOHRecord is one stock-on-hand line from an uploaded file.
type SOHRecord struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FormNo         string     `gorm:"column:form_no;not null;index;size:64" json:"form_no"`
	Storerkey      string     `gorm:"not null;size:64" json:"storerkey"`
	SKU            string     `gorm:"column:sku;not null;index;size:128" json:"sku"`
	Loc            string     `gorm:"not null;size:64" json:"loc"`
	Lot            string     `gorm:"not null;size:64" json:"lot"`
	ItemID         string     `gorm:"column:item_id;not null;size:128" json:"item_id"`
	QtyOnHand      float64    `gorm:"column:qty_onhand" json:"qty_onhand"`
	QtyAllocated   float64    `gorm:"column:qty_allocated" json:"qty_allocated"`
	QtyAvailable   float64    `gorm:"column:qty_available" json:"qty_available"`
	Lottable01     string     `gorm:"column:lottable01" json:"lottable01,omitempty"`
	ProjectScope   string     `json:"project_scope,omitempty"`
	Lottable10     string     `gorm:"column:lottable10" json:"lottable10,omitempty"`
	ProjectID      string     `gorm:"column:project_id" json:"project_id,omitempty"`
	WBSElement     string     `gorm:"column:wbs_element" json:"wbs_element,omitempty"`
	SKUDescription string     `gorm:"column:sku_description" json:"sku_description,omitempty"`
	SKUGroup       string     `gorm:"column:skugrp" json:"skugrp,omitempty"`
	ReceivedDate   *time.Time `json:"received_date,omitempty"`
	HUID           string     `gorm:"column:huid" json:"huid,omitempty"`
	OwnerID        string     `gorm:"column:owner_id" json:"owner_id,omitempty"`
	StdCube        *float64   `gorm:"column:stdcube" json:"stdcube,omitempty"`
	UploadID       string     `gorm:"size:64;index" json:"upload_id"`
	UploadedBy     string     `gorm:"type:uuid;index" json:"uploaded_by"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (SOHRecord) TableName() string { return "soh_data" }

// FormStatus is the workflow position of an STO form.
type FormStatus string

const (
	FormStatusPrinted     FormStatus = "PRINTED"
	FormStatusDistributed FormStatus = "DISTRIBUTED"
	FormStatusVerified    FormStatus = "VERIFIED"
	FormStatusInput       FormStatus = "INPUT"
	FormStatusCompleted   FormStatus = "COMPLETED"
	FormStatusArchived    FormStatus = "ARCHIVED"
)

// FormProgress tracks an STO form through its workflow.
type FormProgress struct {
	BaseModel

	FormNo    string     `gorm:"column:form_no;uniqueIndex;not null;size:64" json:"form_no"`
	Status    FormStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	UpdatedBy string     `gorm:"type:uuid" json:"updated_by"`
}

func (FormProgress) TableName() string { return "form_progress" }
