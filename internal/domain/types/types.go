// Package types contains the response shapes of the HTTP API.
package types

import "github.com/okian/mastery/internal/domain/model"

// Error codes carried in Envelope.ErrCode.
const (
	CodeOK           = 0
	CodeBadRequest   = 1
	CodeNotFound     = 2
	CodeBusy         = 3
	CodeUnavailable  = 4
	CodeInternal     = 5
	CodeMethodDenied = 6
)

// Envelope wraps every API response.
type Envelope struct {
	ErrCode int    `json:"errCode"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data any) Envelope {
	return Envelope{ErrCode: CodeOK, Data: data}
}

// Fail builds an error envelope.
func Fail(code int, msg string) Envelope {
	return Envelope{ErrCode: code, Message: msg}
}

// VehiclePage is one page of the catalog.
type VehiclePage struct {
	List  []model.VehicleRecord `json:"list"`
	Total int                   `json:"total"`
}

// HistoryList is the snapshot history of one vehicle.
type HistoryList struct {
	List []model.HistorySnapshot `json:"list"`
}

// TriggerAck acknowledges an on-demand run request.
type TriggerAck struct {
	Job    string `json:"job"`
	Status string `json:"status"`
}
