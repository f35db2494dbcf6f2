package errortypes

// Timeout should be used to flag that an adapter failed to return a bid because its deadline
// expired or the auction was cancelled before a result was received.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

func (err *Timeout) Severity() Severity {
	return SeverityFatal
}

// BadInput should be used when returning errors which are caused by a malformed auction request.
// It is surfaced to the caller before any adapter is invoked.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}

// BadServerResponse should be used when returning errors which are caused by bad/unexpected behavior on the remote server.
//
// For example:
//
//   - The external server responded with a 500
//   - The external server gave a malformed or unexpected response.
//
// These should not be used to log _connection_ errors (e.g. "couldn't find host"),
// which may indicate config issues for the host operator.
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

func (err *BadServerResponse) Severity() Severity {
	return SeverityFatal
}

// NoBid is returned by adapters which deliberately declined to bid. Reason is an adapter specific
// code such as "NO_FILL" or "STATUS_503" and is surfaced verbatim as the no-bid reason.
type NoBid struct {
	Reason string
}

func (err *NoBid) Error() string {
	return "no bid: " + err.Reason
}

func (err *NoBid) Code() int {
	return NoBidErrorCode
}

func (err *NoBid) Severity() Severity {
	return SeverityWarning
}

// NoConversionRate is used when a bid currency cannot be converted into the auction currency.
type NoConversionRate struct {
	Message string
}

func (err *NoConversionRate) Error() string {
	return err.Message
}

func (err *NoConversionRate) Code() int {
	return NoConversionRateErrorCode
}

func (err *NoConversionRate) Severity() Severity {
	return SeverityWarning
}

// FailedToSign is raised when a tracking or delivery token cannot be minted for the winning bid.
// It aborts the auction.
type FailedToSign struct {
	Message string
}

func (err *FailedToSign) Error() string {
	return err.Message
}

func (err *FailedToSign) Code() int {
	return FailedToSignErrorCode
}

func (err *FailedToSign) Severity() Severity {
	return SeverityFatal
}

// FailedToMarshal is used when a payload cannot be encoded for an external collaborator.
type FailedToMarshal struct {
	Message string
}

func (err *FailedToMarshal) Error() string {
	return err.Message
}

func (err *FailedToMarshal) Code() int {
	return FailedToMarshalErrorCode
}

func (err *FailedToMarshal) Severity() Severity {
	return SeverityFatal
}

// Warning is a generic non-fatal error. Throughout the codebase, an error can
// only be a warning if it's of the type defined below
type Warning struct {
	Message     string
	WarningCode int
}

func (err *Warning) Error() string {
	return err.Message
}

func (err *Warning) Code() int {
	return err.WarningCode
}

func (err *Warning) Severity() Severity {
	return SeverityWarning
}
