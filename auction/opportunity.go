package auction

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/rivalapexmediation/auction-server/errortypes"
)

// AdFormat is the creative format an opportunity is auctioned for.
type AdFormat string

const (
	FormatBanner       AdFormat = "banner"
	FormatInterstitial AdFormat = "interstitial"
	FormatRewarded     AdFormat = "rewarded"
	FormatNative       AdFormat = "native"
)

// AdFormats returns all known ad formats.
func AdFormats() []AdFormat {
	return []AdFormat{
		FormatBanner,
		FormatInterstitial,
		FormatRewarded,
		FormatNative,
	}
}

// Valid reports whether f is one of AdFormats.
func (f AdFormat) Valid() bool {
	for _, known := range AdFormats() {
		if f == known {
			return true
		}
	}
	return false
}

// Mode controls whether an experiment arm is allowed to deliver what it decides.
type Mode string

const (
	ModeShadow    Mode = "shadow"
	ModeMirroring Mode = "mirroring"
	ModeLive      Mode = "live"
)

// Modes returns all known experiment modes.
func Modes() []Mode {
	return []Mode{
		ModeShadow,
		ModeMirroring,
		ModeLive,
	}
}

// ArmControl is the experiment arm which never reaches the adapters.
const ArmControl = "control"

// Consent carries the privacy regulation signals attached to an opportunity. It is echoed
// verbatim to the caller with a winning response.
type Consent struct {
	GDPRApplies     *bool  `json:"gdprApplies,omitempty"`
	TCString        string `json:"tcString,omitempty"`
	USPrivacy       string `json:"usPrivacy,omitempty"`
	GPP             string `json:"gpp,omitempty"`
	COPPA           bool   `json:"coppa,omitempty"`
	LimitAdTracking bool   `json:"limitAdTracking,omitempty"`
}

// ExperimentContext describes the experiment assignment of a request.
type ExperimentContext struct {
	ExperimentID  string  `json:"experimentId"`
	Arm           string  `json:"arm"`
	AssignmentTs  int64   `json:"assignmentTs,omitempty"`
	MirrorPercent float64 `json:"mirrorPercent,omitempty"`
	Mode          Mode    `json:"mode,omitempty"`
}

// EffectiveMode treats an unset mode as live.
func (e *ExperimentContext) EffectiveMode() Mode {
	if e == nil || e.Mode == "" {
		return ModeLive
	}
	return e.Mode
}

// IsControl reports whether the request belongs to the control arm.
func (e *ExperimentContext) IsControl() bool {
	return e != nil && e.Arm == ArmControl
}

// BidOpportunity is a single impression offered to the adapters.
type BidOpportunity struct {
	RequestID   string             `json:"requestId"`
	PlacementID string             `json:"placementId"`
	AdFormat    AdFormat           `json:"adFormat"`
	FloorCPM    *float64           `json:"floorCpm"`
	Consent     *Consent           `json:"consent,omitempty"`
	Device      json.RawMessage    `json:"device,omitempty"`
	App         json.RawMessage    `json:"app,omitempty"`
	User        json.RawMessage    `json:"user,omitempty"`
	Migration   *ExperimentContext `json:"migration,omitempty"`
}

// Floor returns the floor price, or zero when none was supplied.
func (o *BidOpportunity) Floor() float64 {
	if o.FloorCPM == nil {
		return 0
	}
	return *o.FloorCPM
}

// Mode is the effective experiment mode of the opportunity.
func (o *BidOpportunity) Mode() Mode {
	return o.Migration.EffectiveMode()
}

// Validate checks the opportunity before any adapter is invoked.
func (o *BidOpportunity) Validate() error {
	if o.RequestID == "" {
		return &errortypes.BadInput{Message: "requestId is required"}
	}
	if o.PlacementID == "" {
		return &errortypes.BadInput{Message: "placementId is required"}
	}
	if o.AdFormat == "" {
		return &errortypes.BadInput{Message: "adFormat is required"}
	}
	if !o.AdFormat.Valid() {
		return &errortypes.BadInput{Message: fmt.Sprintf("adFormat %q is not one of %v", o.AdFormat, AdFormats())}
	}
	if o.FloorCPM == nil {
		return &errortypes.BadInput{Message: "floorCpm is required"}
	}
	if floor := *o.FloorCPM; floor < 0 || math.IsNaN(floor) || math.IsInf(floor, 0) {
		return &errortypes.BadInput{Message: fmt.Sprintf("floorCpm must be a non-negative number, got %v", floor)}
	}
	if o.Migration != nil {
		return o.Migration.validate()
	}
	return nil
}

func (e *ExperimentContext) validate() error {
	if e.ExperimentID == "" {
		return &errortypes.BadInput{Message: "migration.experimentId is required"}
	}
	if e.Arm == "" {
		return &errortypes.BadInput{Message: "migration.arm is required"}
	}
	if e.MirrorPercent < 0 || e.MirrorPercent > 100 {
		return &errortypes.BadInput{Message: fmt.Sprintf("migration.mirrorPercent must be within [0, 100], got %v", e.MirrorPercent)}
	}
	if e.Mode == "" {
		return nil
	}
	for _, m := range Modes() {
		if e.Mode == m {
			return nil
		}
	}
	return &errortypes.BadInput{Message: fmt.Sprintf("migration.mode %q is not one of %v", e.Mode, Modes())}
}
