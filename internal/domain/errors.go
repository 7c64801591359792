package domain

import "fmt"

type ErrCode string

const (
	CodeValidation           ErrCode = "validation_error"
	CodeUnknownEventType     ErrCode = "unknown_event_type"
	CodeNotConnected         ErrCode = "not_connected"
	CodePublishFailed        ErrCode = "publish_failed"
	CodeBindingFailed        ErrCode = "binding_failed"
	CodeSubscriptionNotFound ErrCode = "subscription_not_found"
)

type AppError struct {
	Code    ErrCode
	Message string
	Meta    map[string]string
}

func (e *AppError) Error() string {
	if len(e.Meta) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Meta)
}

func ErrValidation(msg string) error { return &AppError{Code: CodeValidation, Message: msg} }
func ErrValidationMeta(msg string, meta map[string]string) error {
	return &AppError{Code: CodeValidation, Message: msg, Meta: meta}
}

func ErrUnknownEventType(eventType string) error {
	return &AppError{
		Code:    CodeUnknownEventType,
		Message: "event type is not registered",
		Meta:    map[string]string{"event_type": eventType},
	}
}

func ErrNotConnected() error {
	return &AppError{Code: CodeNotConnected, Message: "broker connection is not available"}
}

func ErrPublishFailed(msg string) error {
	return &AppError{Code: CodePublishFailed, Message: msg}
}

func ErrBindingFailed(msg string, meta map[string]string) error {
	return &AppError{Code: CodeBindingFailed, Message: msg, Meta: meta}
}

func ErrSubscriptionNotFound(id string) error {
	return &AppError{
		Code:    CodeSubscriptionNotFound,
		Message: "subscription does not exist",
		Meta:    map[string]string{"subscription_id": id},
	}
}
