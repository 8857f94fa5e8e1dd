// internal/model/operation.go
package model

// OperationType represents the type of operation
type OperationType string

const (
	OperationTypeIdentify       OperationType = "IDENTIFY"
	OperationTypeState          OperationType = "STATE"
	OperationTypeQuerySetpoints OperationType = "QUERY_SETPOINTS"
	OperationTypeSet            OperationType = "SET"
	OperationTypeOutput         OperationType = "OUTPUT"
	OperationTypePreset         OperationType = "PRESET"
	OperationTypeScreenshot     OperationType = "SCREENSHOT"
)

// OperationStatus represents the outcome of an operation
type OperationStatus string

const (
	OperationStatusSuccess OperationStatus = "SUCCESS"
	OperationStatusFailed  OperationStatus = "FAILED"
)
