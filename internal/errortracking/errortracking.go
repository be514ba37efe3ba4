package errortracking

import (
	"net/http"

	"gitlab.com/gitlab-org/labkit/errortracking"
)

// CaptureOption alias to avoid importing labkit/errortracking in internal packages
type CaptureOption = errortracking.CaptureOption

// Initialize configures Sentry reporting. It is a no-op when dsn is empty.
func Initialize(dsn, environment, version string) error {
	if dsn == "" {
		return nil
	}

	return errortracking.Initialize(
		errortracking.WithSentryDSN(dsn),
		errortracking.WithLoggerName("request-echo"),
		errortracking.WithSentryEnvironment(environment),
		errortracking.WithVersion(version),
	)
}

// WithField alias to avoid importing labkit/errortracking in internal packages
func WithField(key, value string) CaptureOption {
	return errortracking.WithField(key, value)
}

// CaptureErrWithReqAndStackTrace reports err with the request, its context
// and the current stack trace attached
func CaptureErrWithReqAndStackTrace(err error, r *http.Request, fields ...CaptureOption) {
	opts := append(
		fields,
		errortracking.WithContext(r.Context()),
		errortracking.WithRequest(r),
		errortracking.WithStackTrace(),
	)

	errortracking.Capture(err, opts...)
}

// CaptureErrWithStackTrace reports err outside of an HTTP request, e.g. from
// the uwsgi server
func CaptureErrWithStackTrace(err error, fields ...CaptureOption) {
	errortracking.Capture(err, append(fields, errortracking.WithStackTrace())...)
}
