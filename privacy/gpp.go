package privacy

import (
	gpplib "github.com/prebid/go-gpp"
	gppConstants "github.com/prebid/go-gpp/constants"
)

// GPP describes a parsed Global Privacy Platform string.
type GPP struct {
	Consent    string
	SectionIDs []int8
	// tcfSection is the TCF EU v2 section carried inside the container, if any.
	tcfSection string
}

func parseGPP(consent string) (GPP, []error) {
	container, errs := gpplib.Parse(consent)
	if len(errs) > 0 {
		return GPP{}, errs
	}

	gpp := GPP{
		Consent:    consent,
		SectionIDs: make([]int8, 0, len(container.SectionTypes)),
	}
	for _, id := range container.SectionTypes {
		gpp.SectionIDs = append(gpp.SectionIDs, int8(id))
	}
	if i := indexOfSID(container, gppConstants.SectionTCFEU2); i >= 0 && i < len(container.Sections) {
		gpp.tcfSection = container.Sections[i].GetValue()
	}
	return gpp, nil
}

// IsSIDInList reports whether sid is one of the section ids in gppSIDs.
func IsSIDInList(gppSIDs []int8, sid gppConstants.SectionID) bool {
	for _, id := range gppSIDs {
		if id == int8(sid) {
			return true
		}
	}
	return false
}

func indexOfSID(gpp gpplib.GppContainer, sid gppConstants.SectionID) int {
	for i, id := range gpp.SectionTypes {
		if id == sid {
			return i
		}
	}
	return -1
}
