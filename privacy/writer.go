package privacy

import (
	"github.com/prebid/openrtb/v20/openrtb2"
)

// Write copies the policies onto an OpenRTB bid request.
func (p Policies) Write(req *openrtb2.BidRequest) {
	if req == nil {
		return
	}

	if p.GDPRApplies != nil {
		gdpr := int8(0)
		if *p.GDPRApplies {
			gdpr = 1
		}
		regs(req).GDPR = &gdpr
	}
	if p.TCF.Consent != "" {
		if req.User == nil {
			req.User = &openrtb2.User{}
		}
		req.User.Consent = p.TCF.Consent
	}
	if p.GPP.Consent != "" {
		regs(req).GPP = p.GPP.Consent
		regs(req).GPPSID = p.GPP.SectionIDs
	}
	if p.USPrivacy != "" {
		regs(req).USPrivacy = p.USPrivacy
	}
	if p.COPPA {
		regs(req).COPPA = 1
	}
	if p.LMT && req.Device != nil {
		lmt := int8(1)
		req.Device.Lmt = &lmt
	}
}

func regs(req *openrtb2.BidRequest) *openrtb2.Regs {
	if req.Regs == nil {
		req.Regs = &openrtb2.Regs{}
	}
	return req.Regs
}
