package awsauth

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/errs"
)

// transientCodes are AWS error codes worth retrying.
var transientCodes = map[string]bool{
	"Throttling":               true,
	"ThrottlingException":      true,
	"RequestLimitExceeded":     true,
	"TooManyRequestsException": true,
	"RequestTimeout":           true,
	"RequestTimeoutException":  true,
	"InternalError":            true,
	"InternalServerError":      true,
	"ServiceUnavailable":       true,
	"Unavailable":              true,
}

// throttleCodes are the subset of transient codes that signal throttling.
var throttleCodes = map[string]bool{
	"Throttling":               true,
	"ThrottlingException":      true,
	"RequestLimitExceeded":     true,
	"TooManyRequestsException": true,
}

// accessDeniedCodes signal an authenticated-but-denied response.
var accessDeniedCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"UnauthorizedOperation": true,
}

// authCodes signal a rejected or expired credential.
var authCodes = map[string]bool{
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"SignatureDoesNotMatch":       true,
}

// IsTransient reports whether err is worth retrying: a throttling or
// server-busy AWS code, or a network connectivity failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientCodes[apiErr.ErrorCode()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsThrottle reports whether err is a throttling-class AWS error.
func IsThrottle(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return throttleCodes[apiErr.ErrorCode()]
	}
	return false
}

// IsAccessDenied reports whether err is an access-denied AWS error.
func IsAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return accessDeniedCodes[apiErr.ErrorCode()]
	}
	return false
}

// Classify wraps an AWS call failure in a typed error with a stable kind:
// authorization for access-denied codes, auth for credential rejections,
// rate_limit for throttling, data_retrieval for everything else.
func Classify(err error, operation string, kv ...any) error {
	if err == nil {
		return nil
	}
	if e := (*errs.Error)(nil); errors.As(err, &e) {
		return err
	}

	kv = append(kv, "operation", operation)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		kv = append(kv, "code", code)
		switch {
		case accessDeniedCodes[code]:
			return errs.Wrap(err, errs.KindAuthorization, "access denied", kv...)
		case authCodes[code]:
			return errs.Wrap(err, errs.KindAuth, "authentication rejected", kv...)
		case throttleCodes[code]:
			return errs.Wrap(err, errs.KindRateLimit, "throttled", kv...)
		}
	}
	return errs.Wrap(err, errs.KindDataRetrieval, "call failed", kv...)
}
