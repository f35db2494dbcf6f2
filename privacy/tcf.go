package privacy

import (
	"fmt"

	"github.com/prebid/go-gdpr/api"
	"github.com/prebid/go-gdpr/vendorconsent"
)

// ErrorMalformedConsent wraps a TCF string that could not be parsed.
type ErrorMalformedConsent struct {
	Consent string
	Cause   error
}

func (e *ErrorMalformedConsent) Error() string {
	return fmt.Sprintf("malformed consent string %s: %s", e.Consent, e.Cause.Error())
}

func parseTCF(consent string) (TCF, error) {
	parsed, err := vendorconsent.ParseString(consent)
	if err != nil {
		return TCF{}, &ErrorMalformedConsent{Consent: consent, Cause: err}
	}
	if err := validateVersions(parsed); err != nil {
		return TCF{}, &ErrorMalformedConsent{Consent: consent, Cause: err}
	}

	return TCF{
		Consent:         consent,
		EncodingVersion: parsed.Version(),
		ListVersion:     parsed.VendorListVersion(),
		SpecVersion:     specVersion(parsed.TCFPolicyVersion()),
	}, nil
}

// Only TCF v2 strings are accepted.
func validateVersions(pc api.VendorConsents) error {
	if version := pc.Version(); version != 2 {
		return fmt.Errorf("invalid encoding format version: %d", version)
	}
	if policyVersion := pc.TCFPolicyVersion(); policyVersion > 4 {
		return fmt.Errorf("invalid TCF policy version: %d", policyVersion)
	}
	return nil
}

func specVersion(policyVersion uint8) uint16 {
	if policyVersion == 4 {
		return 3
	}
	return 2
}
