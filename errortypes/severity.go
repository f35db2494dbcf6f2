package errortypes

import "errors"

// Severity represents the severity level of an auction processing error.
type Severity int

const (
	// SeverityUnknown represents an unknown severity level.
	SeverityUnknown Severity = iota

	// SeverityFatal represents a fatal error which prevents an auction decision.
	SeverityFatal

	// SeverityWarning represents a non-fatal error which is logged and otherwise ignored.
	SeverityWarning
)

func isFatal(err error) bool {
	var s Coder
	return !errors.As(err, &s) || s.Severity() == SeverityFatal
}

// IsWarning returns true if an error is labeled with a Severity of SeverityWarning.
func IsWarning(err error) bool {
	var s Coder
	return errors.As(err, &s) && s.Severity() == SeverityWarning
}

// ContainsFatalError checks if the error list contains a fatal error.
func ContainsFatalError(errs []error) bool {
	for _, err := range errs {
		if isFatal(err) {
			return true
		}
	}
	return false
}

// WarningOnly returns a new error list with only the warning severity errors.
func WarningOnly(errs []error) []error {
	errsWarning := make([]error, 0, len(errs))
	for _, err := range errs {
		if IsWarning(err) {
			errsWarning = append(errsWarning, err)
		}
	}
	return errsWarning
}
