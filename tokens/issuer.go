package tokens

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/errortypes"
)

// Subject identifies the winning bid the tokens are minted for.
type Subject struct {
	BidID       string
	PlacementID string
	Bid         *auction.Bid
}

// Issued holds the public URLs built around the minted tokens.
type Issued struct {
	ImpressionURL string
	ClickURL      string
	DeliveryURL   string
}

// Issuer mints the impression, click and delivery tokens for a winning bid.
type Issuer struct {
	signer          Signer
	impressionTTL   time.Duration
	clickTTL        time.Duration
	deliveryTTL     time.Duration
	trackingBaseURL string
	deliveryBaseURL string
}

func NewIssuer(signer Signer, cfg config.Tokens) *Issuer {
	return &Issuer{
		signer:          signer,
		impressionTTL:   time.Duration(cfg.ImpressionTTLSeconds) * time.Second,
		clickTTL:        time.Duration(cfg.ClickTTLSeconds) * time.Second,
		deliveryTTL:     time.Duration(cfg.DeliveryTTLSeconds) * time.Second,
		trackingBaseURL: strings.TrimRight(cfg.TrackingBaseURL, "/"),
		deliveryBaseURL: strings.TrimRight(cfg.DeliveryBaseURL, "/"),
	}
}

// Issue signs the three tokens. Each token gets its own nonce.
func (i *Issuer) Issue(subject Subject) (*Issued, error) {
	if subject.Bid == nil {
		return nil, &errortypes.FailedToSign{Message: "no bid to issue tokens for"}
	}

	impression, err := i.sign(subject, PurposeImpression, i.impressionTTL)
	if err != nil {
		return nil, err
	}
	click, err := i.sign(subject, PurposeClick, i.clickTTL)
	if err != nil {
		return nil, err
	}
	delivery, err := i.sign(subject, PurposeDelivery, i.deliveryTTL)
	if err != nil {
		return nil, err
	}

	return &Issued{
		ImpressionURL: buildURL(i.trackingBaseURL, "imp", impression),
		ClickURL:      buildURL(i.trackingBaseURL, "click", click),
		DeliveryURL:   buildURL(i.deliveryBaseURL, "creative", delivery),
	}, nil
}

func (i *Issuer) sign(subject Subject, purpose Purpose, ttl time.Duration) (string, error) {
	nonce, err := uuid.NewV4()
	if err != nil {
		return "", &errortypes.FailedToSign{Message: fmt.Sprintf("generate nonce: %v", err)}
	}
	claims := Claims{
		BidID:       subject.BidID,
		PlacementID: subject.PlacementID,
		Adapter:     subject.Bid.AdapterName,
		CPM:         subject.Bid.CPM,
		Currency:    subject.Bid.Currency,
		Purpose:     purpose,
		Nonce:       nonce.String(),
	}
	if purpose == PurposeDelivery {
		claims.CreativeURL = subject.Bid.CreativeURL
	}
	return i.signer.Sign(claims, ttl)
}

func buildURL(base, path, token string) string {
	return base + "/" + path + "?token=" + url.QueryEscape(token)
}
