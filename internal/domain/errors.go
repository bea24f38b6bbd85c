package domain

import (
	"errors"
	"fmt"
)

// Category sentinels; use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrUnsupported  = fmt.Errorf("unsupported")
)

// Sentinel errors for the monitor lifecycle, pin configuration and event bus.
var (
	ErrAlreadyActive = fmt.Errorf("monitor already active")
	ErrNotActive     = fmt.Errorf("monitor not active")
	ErrPinConfig     = fmt.Errorf("pin configuration failed")
	ErrBusFull       = fmt.Errorf("event bus full")
	ErrBusClosed     = fmt.Errorf("event bus closed")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")

	// Gateway errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: authentication failed")
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Controller.Initialize")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "gpi", "eventbus"); used for ErrorCode dispatch
	Cause     error  // collaborator error carried alongside the sentinel, may be nil
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Err)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *DomainError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WithCause returns a copy of e that also carries cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
// Nothing in the monitor retries on its own; the daemon's scheduler and gateway
// use this to decide whether to log at warn or error level.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrBusFull) || errors.Is(err, ErrRateLimit)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeUnsupported       ErrorCode = "UNSUPPORTED"
	CodeAlreadyActive     ErrorCode = "ALREADY_ACTIVE"
	CodeNotActive         ErrorCode = "NOT_ACTIVE"
	CodePinConfig         ErrorCode = "PIN_CONFIG"
	CodeBusFull           ErrorCode = "BUS_FULL"
	CodeBusClosed         ErrorCode = "BUS_CLOSED"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeSampleCount     ErrorCode = "GPI_SAMPLE_COUNT"
	CodePinOutOfRange   ErrorCode = "GPIO_PIN_OUT_OF_RANGE"
	CodePinNotFound     ErrorCode = "GPIO_PIN_NOT_FOUND"
	CodeEdgeUnsupported ErrorCode = "GPIO_EDGE_UNSUPPORTED"
	CodeScheduleTask    ErrorCode = "SCHEDULER_TASK_INVALID"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:          CodeNotFound,
	ErrTimeout:           CodeTimeout,
	ErrInvalidInput:      CodeInvalidInput,
	ErrUnsupported:       CodeUnsupported,
	ErrAlreadyActive:     CodeAlreadyActive,
	ErrNotActive:         CodeNotActive,
	ErrPinConfig:         CodePinConfig,
	ErrBusFull:           CodeBusFull,
	ErrBusClosed:         CodeBusClosed,
	ErrConfigLoad:        CodeConfigLoad,
	ErrGatewayAuthFailed: CodeGatewayAuth,
	ErrRPCMethodNotFound: CodeRPCMethodNotFound,
	ErrRPCInvalidPayload: CodeRPCInvalidPayload,
	ErrRateLimit:         CodeRateLimit,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrInvalidInput: {
		"gpi":       CodeSampleCount,
		"gpio":      CodePinOutOfRange,
		"scheduler": CodeScheduleTask,
	},
	ErrNotFound: {
		"gpio": CodePinNotFound,
	},
	ErrUnsupported: {
		"gpio": CodeEdgeUnsupported,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		return de.Code()
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
