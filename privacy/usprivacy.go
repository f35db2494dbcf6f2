package privacy

import "errors"

const (
	usPrivacyVersion1      = '1'
	usPrivacyNo            = 'N'
	usPrivacyYes           = 'Y'
	usPrivacyNotApplicable = '-'
)

const (
	indexVersion                = 0
	indexExplicitNotice         = 1
	indexOptOutSale             = 2
	indexLSPACoveredTransaction = 3
)

// parseUSPrivacy validates an IAB US Privacy string and reports whether the user opted out of sale.
func parseUSPrivacy(consent string) (bool, error) {
	if len(consent) != 4 {
		return false, errors.New("must contain 4 characters")
	}
	if consent[indexVersion] != usPrivacyVersion1 {
		return false, errors.New("must specify version 1")
	}
	if !validSignal(consent[indexExplicitNotice]) {
		return false, errors.New("must specify 'N', 'Y', or '-' for the explicit notice")
	}
	if !validSignal(consent[indexOptOutSale]) {
		return false, errors.New("must specify 'N', 'Y', or '-' for the opt-out sale")
	}
	if !validSignal(consent[indexLSPACoveredTransaction]) {
		return false, errors.New("must specify 'N', 'Y', or '-' for the limited service provider agreement")
	}
	return consent[indexOptOutSale] == usPrivacyYes, nil
}

func validSignal(c byte) bool {
	return c == usPrivacyNo || c == usPrivacyYes || c == usPrivacyNotApplicable
}
