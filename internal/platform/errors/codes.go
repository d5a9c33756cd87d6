// Package errors provides structured error handling with machine codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeInputInvalid      Code = "INPUT_INVALID"
	CodeLatitudeRange     Code = "LATITUDE_OUT_OF_RANGE"
	CodeLongitudeRange    Code = "LONGITUDE_OUT_OF_RANGE"
	CodeSessionIDEmpty    Code = "SESSION_ID_EMPTY"
	CodeUserIDEmpty       Code = "USER_ID_EMPTY"
	CodeSessionNotActive  Code = "SESSION_NOT_ACTIVE"
	CodeTrailNotActive    Code = "TRAIL_NOT_ACTIVE"
	CodeSessionUserClaims Code = "SESSION_OWNED_BY_OTHER_USER"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"

	// Detection errors; swallowed by ingestion, surfaced only in logs.
	CodeDetectionFault Code = "DETECTION_FAULT"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInputInvalid,
		CodeLatitudeRange,
		CodeLongitudeRange,
		CodeSessionIDEmpty,
		CodeUserIDEmpty:
		return http.StatusBadRequest

	case CodeSessionNotActive,
		CodeTrailNotActive,
		CodeSessionUserClaims:
		return http.StatusConflict

	case CodeNotFound:
		return http.StatusNotFound

	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
