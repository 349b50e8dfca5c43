package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Bluetooth errors
	ErrorPermissionDenied     ErrorCode = "PERMISSION_DENIED"
	ErrorBluetoothUnavailable ErrorCode = "BLUETOOTH_UNAVAILABLE"
	ErrorConnectionFailed     ErrorCode = "CONNECTION_FAILED"
	ErrorStreamError          ErrorCode = "STREAM_ERROR"

	// Recognition and translation outcomes
	ErrorNoTextFound         ErrorCode = "NO_TEXT_FOUND"
	ErrorTranslationNotReady ErrorCode = "TRANSLATION_NOT_READY"
	ErrorTranslationFailed   ErrorCode = "TRANSLATION_FAILED"
	ErrorInvalidLanguage     ErrorCode = "INVALID_LANGUAGE"

	// Infrastructure errors
	ErrorOCRFailed     ErrorCode = "OCR_FAILED"
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// AppError represents a structured error raised by the service
type AppError struct {
	Code      ErrorCode
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks
var (
	ErrPermissionDenied     = &AppError{Code: ErrorPermissionDenied, Message: "permission denied"}
	ErrBluetoothUnavailable = &AppError{Code: ErrorBluetoothUnavailable, Message: "bluetooth unavailable"}
	ErrConnectionFailed     = &AppError{Code: ErrorConnectionFailed, Message: "connection failed"}
	ErrStreamError          = &AppError{Code: ErrorStreamError, Message: "stream error"}
	ErrNoTextFound          = &AppError{Code: ErrorNoTextFound, Message: "no text found"}
	ErrTranslationNotReady  = &AppError{Code: ErrorTranslationNotReady, Message: "translation model not ready"}
	ErrTranslationFailed    = &AppError{Code: ErrorTranslationFailed, Message: "translation failed"}
	ErrInvalidLanguage      = &AppError{Code: ErrorInvalidLanguage, Message: "invalid language"}
	ErrOCRFailed            = &AppError{Code: ErrorOCRFailed, Message: "ocr failed"}
	ErrStorageFailed        = &AppError{Code: ErrorStorageFailed, Message: "storage failed"}
)

// Factory functions for common errors

func NewPermissionDeniedError(operation string, cause error) *AppError {
	return &AppError{
		Code:      ErrorPermissionDenied,
		Message:   fmt.Sprintf("Permission denied for %s", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

func NewBluetoothUnavailableError(reason string, cause error) *AppError {
	return &AppError{
		Code:      ErrorBluetoothUnavailable,
		Message:   fmt.Sprintf("Bluetooth unavailable: %s", reason),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewConnectionFailedError(address string, cause error) *AppError {
	return &AppError{
		Code:      ErrorConnectionFailed,
		Message:   fmt.Sprintf("Could not connect to %s", address),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"address": address,
		},
		Cause: cause,
	}
}

func NewStreamError(sessionID string, operation string, cause error) *AppError {
	return &AppError{
		Code:      ErrorStreamError,
		Message:   fmt.Sprintf("Stream %s failed", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"session_id": sessionID,
			"operation":  operation,
		},
		Cause: cause,
	}
}

func NewTranslationFailedError(source, target string, cause error) *AppError {
	return &AppError{
		Code:      ErrorTranslationFailed,
		Message:   fmt.Sprintf("Translation %s->%s failed", source, target),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source_language": source,
			"target_language": target,
		},
		Cause: cause,
	}
}

func NewInvalidLanguageError(code string, cause error) *AppError {
	return &AppError{
		Code:      ErrorInvalidLanguage,
		Message:   fmt.Sprintf("Unsupported language code: %q", code),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"language": code,
		},
		Cause: cause,
	}
}

func NewOCRFailedError(engine string, cause error) *AppError {
	return &AppError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed in engine: %s", engine),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(objectName string, cause error) *AppError {
	return &AppError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store image",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"object": objectName,
		},
		Cause: cause,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ToMap converts error to map for API responses
func (e *AppError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
