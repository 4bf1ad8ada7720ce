package models

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the category of failure that aborted a pipeline run.
type ErrorKind string

const (
	// Configuration
	ErrConfigInvalid ErrorKind = "config_invalid"

	// Version resolution phase
	ErrNoTargetSpecified  ErrorKind = "no_target_specified"
	ErrConflictingTargets ErrorKind = "conflicting_targets"
	ErrUnknownTag         ErrorKind = "unknown_tag"
	ErrUnknownCommit      ErrorKind = "unknown_commit"
	ErrUnknownBranch      ErrorKind = "unknown_branch"
	ErrNoBuildAvailable   ErrorKind = "no_build_available"
	ErrUpstreamFailed     ErrorKind = "upstream_failed" // GitHub API or nightly feed unreachable

	// Source checkout phase
	ErrCheckoutFailed ErrorKind = "checkout_failed"

	// Reference binary phase
	ErrDownloadFailed   ErrorKind = "download_failed"
	ErrExtractionFailed ErrorKind = "extraction_failed"

	// Native library phase
	ErrProvisioningFailed ErrorKind = "provisioning_failed"

	// Build and packaging phase
	ErrBuildFailed     ErrorKind = "build_failed"
	ErrPackagingFailed ErrorKind = "packaging_failed"

	// Publish phase
	ErrPublishFailed ErrorKind = "publish_failed"

	// Catch-all
	ErrInternalError ErrorKind = "internal_error"
)

// Exit codes grouped by failure category so callers (CI jobs) can branch on them.
const (
	ExitOK           = 0
	ExitInternal     = 1
	ExitConfig       = 2
	ExitResolution   = 10
	ExitCheckout     = 11
	ExitDownload     = 12
	ExitExtraction   = 13
	ExitProvisioning = 14
	ExitBuild        = 15
	ExitPackaging    = 16
	ExitPublish      = 17
)

// ExitCode returns the process exit code for the kind.
func (k ErrorKind) ExitCode() int {
	switch k {
	case ErrConfigInvalid:
		return ExitConfig
	case ErrNoTargetSpecified, ErrConflictingTargets, ErrUnknownTag,
		ErrUnknownCommit, ErrUnknownBranch, ErrNoBuildAvailable, ErrUpstreamFailed:
		return ExitResolution
	case ErrCheckoutFailed:
		return ExitCheckout
	case ErrDownloadFailed:
		return ExitDownload
	case ErrExtractionFailed:
		return ExitExtraction
	case ErrProvisioningFailed:
		return ExitProvisioning
	case ErrBuildFailed:
		return ExitBuild
	case ErrPackagingFailed:
		return ExitPackaging
	case ErrPublishFailed:
		return ExitPublish
	default:
		return ExitInternal
	}
}

// PipelineError is a categorized failure. Phase is set for build failures
// ("update", "bpy", "stubs") and left empty otherwise.
type PipelineError struct {
	Kind  ErrorKind
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	msg := string(e.Kind)
	if e.Phase != "" {
		msg += " (" + e.Phase + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a PipelineError of the same kind. A target
// with an empty Phase matches any phase.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Phase == "" || t.Phase == e.Phase)
}

// NewError wraps err with kind.
func NewError(kind ErrorKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

// Errorf formats a message and wraps it with kind.
func Errorf(kind ErrorKind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// PhaseError wraps err as a failure of the named build phase.
func PhaseError(kind ErrorKind, phase string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Phase: phase, Err: err}
}

// KindOf returns the kind of the first PipelineError in err's chain, or
// ErrInternalError when there is none.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrInternalError
}

// ExitCode maps err to a process exit code. A nil error maps to ExitOK.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return KindOf(err).ExitCode()
}
