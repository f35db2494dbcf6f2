// Package privacy turns the consent block of an opportunity into validated policies and writes them
// onto outbound bid requests.
package privacy

import (
	"fmt"

	gppConstants "github.com/prebid/go-gpp/constants"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/errortypes"
	"github.com/rivalapexmediation/auction-server/metrics"
)

// Policies is the validated view of auction.Consent. Invalid strings are dropped, never rejected,
// so the auction proceeds without them.
type Policies struct {
	GDPRApplies *bool
	TCF         TCF
	GPP         GPP
	USPrivacy   string
	OptOutSale  bool
	COPPA       bool
	LMT         bool
}

// TCF describes a parsed TCF consent string.
type TCF struct {
	Consent         string
	EncodingVersion uint8
	ListVersion     uint16
	SpecVersion     uint16
}

// Parse validates consent. The returned errors are warnings.
func Parse(consent *auction.Consent) (Policies, []error) {
	var p Policies
	if consent == nil {
		return p, nil
	}

	var warnings []error
	p.GDPRApplies = consent.GDPRApplies
	p.COPPA = consent.COPPA
	p.LMT = consent.LimitAdTracking

	if consent.TCString != "" {
		tcf, err := parseTCF(consent.TCString)
		if err != nil {
			warnings = append(warnings, &errortypes.Warning{
				Message:     err.Error(),
				WarningCode: errortypes.InvalidPrivacyConsentWarningCode,
			})
		} else {
			p.TCF = tcf
		}
	}

	if consent.GPP != "" {
		gpp, errs := parseGPP(consent.GPP)
		for _, err := range errs {
			warnings = append(warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("gpp %s", err.Error()),
				WarningCode: errortypes.InvalidPrivacyConsentWarningCode,
			})
		}
		if len(errs) == 0 {
			p.GPP = gpp
		}
	}

	// A GPP string with a TCF EU v2 section signals GDPR when the caller did not say otherwise.
	if IsSIDInList(p.GPP.SectionIDs, gppConstants.SectionTCFEU2) {
		if p.GDPRApplies == nil {
			applies := true
			p.GDPRApplies = &applies
		}
		if p.TCF.Consent == "" && p.GPP.tcfSection != "" {
			if tcf, err := parseTCF(p.GPP.tcfSection); err == nil {
				p.TCF = tcf
			}
		}
	}

	if consent.USPrivacy != "" {
		optOut, err := parseUSPrivacy(consent.USPrivacy)
		if err != nil {
			warnings = append(warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("usPrivacy %s", err.Error()),
				WarningCode: errortypes.InvalidPrivacyConsentWarningCode,
			})
		} else {
			p.USPrivacy = consent.USPrivacy
			p.OptOutSale = optOut
		}
	}

	return p, warnings
}

// Labels summarizes the policies for metrics.
func (p Policies) Labels() metrics.PrivacyLabels {
	return metrics.PrivacyLabels{
		GDPREnforced:  p.GDPRApplies != nil && *p.GDPRApplies,
		TCFVersion:    p.TCF.EncodingVersion,
		CCPAProvided:  p.USPrivacy != "",
		CCPAEnforced:  p.OptOutSale,
		COPPAEnforced: p.COPPA,
		LMTEnforced:   p.LMT,
	}
}
