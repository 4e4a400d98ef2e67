package constants

import "errors"

// ErrorCode is a numeric error code from the store's fixed taxonomy.
type ErrorCode int

const (
	OtherCause                  ErrorCode = -1
	InternalServerError         ErrorCode = 1
	ConnectionFailed            ErrorCode = 100
	ObjectNotFound              ErrorCode = 101
	InvalidQuery                ErrorCode = 102
	InvalidClassName            ErrorCode = 103
	MissingObjectID             ErrorCode = 104
	InvalidKeyName              ErrorCode = 105
	InvalidPointer              ErrorCode = 106
	InvalidJSON                 ErrorCode = 107
	CommandUnavailable          ErrorCode = 108
	NotInitialized              ErrorCode = 109
	IncorrectType               ErrorCode = 111
	InvalidChannelName          ErrorCode = 112
	PushMisconfigured           ErrorCode = 115
	ObjectTooLarge              ErrorCode = 116
	OperationForbidden          ErrorCode = 119
	CacheMiss                   ErrorCode = 120
	InvalidNestedKey            ErrorCode = 121
	InvalidFileName             ErrorCode = 122
	InvalidACL                  ErrorCode = 123
	Timeout                     ErrorCode = 124
	InvalidEmailAddress         ErrorCode = 125
	MissingContentType          ErrorCode = 126
	MissingContentLength        ErrorCode = 127
	InvalidContentLength        ErrorCode = 128
	FileTooLarge                ErrorCode = 129
	FileSaveError               ErrorCode = 130
	DuplicateValue              ErrorCode = 137
	InvalidRoleName             ErrorCode = 139
	ExceededQuota               ErrorCode = 140
	ScriptFailed                ErrorCode = 141
	ValidationError             ErrorCode = 142
	InvalidImageData            ErrorCode = 150
	UnsavedFileError            ErrorCode = 151
	InvalidPushTimeError        ErrorCode = 152
	FileDeleteError             ErrorCode = 153
	RequestLimitExceeded        ErrorCode = 155
	InvalidEventName            ErrorCode = 160
	UsernameMissing             ErrorCode = 200
	PasswordMissing             ErrorCode = 201
	UsernameTaken               ErrorCode = 202
	EmailTaken                  ErrorCode = 203
	EmailMissing                ErrorCode = 204
	EmailNotFound               ErrorCode = 205
	SessionMissing              ErrorCode = 206
	MustCreateUserThroughSignup ErrorCode = 207
	AccountAlreadyLinked        ErrorCode = 208
	InvalidSessionToken         ErrorCode = 209
	UsernamePasswordMismatch    ErrorCode = 210
	LinkedIDMissing             ErrorCode = 250
	InvalidLinkedSession        ErrorCode = 251
	UnsupportedService          ErrorCode = 252
	ConditionNotMet             ErrorCode = 305
	AggregateError              ErrorCode = 600
	FileReadError               ErrorCode = 601
	XDomainRequest              ErrorCode = 602
)

// Error kinds. Every error produced by this module matches exactly one of them with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("object not found")
	ErrConditionNotMet = errors.New("save condition not met")
	ErrTransport       = errors.New("transport failure")
	ErrServer          = errors.New("server rejected the request")
)

var (
	ErrNoBaseURL     = errors.New("base url not set")
	ErrNoMarshaler   = errors.New("marshaler is not set")
	ErrNoUnmarshaler = errors.New("unmarshaler is not set")
	ErrNoAppID       = errors.New("application id is not set")
	ErrUnknownIntent = errors.New("unknown request intent")
)

// Kind returns the error kind sentinel for code.
func (c ErrorCode) Kind() error {
	switch c {
	case ObjectNotFound, CacheMiss, EmailNotFound:
		return ErrNotFound
	case ConditionNotMet:
		return ErrConditionNotMet
	case ConnectionFailed, Timeout, InternalServerError, RequestLimitExceeded, XDomainRequest:
		return ErrTransport
	case ValidationError, MissingObjectID, InvalidKeyName, InvalidClassName,
		IncorrectType, InvalidACL, InvalidPointer, InvalidRoleName, InvalidNestedKey,
		UsernameMissing, PasswordMissing, SessionMissing:
		return ErrValidation
	default:
		return ErrServer
	}
}
