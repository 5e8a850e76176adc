// Package link encodes trade offers into self-contained capability tokens that
// travel in the path of a claim URL.
//
// The token is not encrypted: whoever holds the link can read the offer. Its
// unguessability comes from the offer nonce.
package link

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/thanhpk/randstr"

	"ghostswap/pkg/amount"
	"ghostswap/pkg/types"
)

const (
	// Prefix is the literal tag every token starts with.
	Prefix = "ghost"
	// Version is the version tag of the current encoding.
	Version = "v2"
	// Separator joins prefix, version and payload.
	Separator = "_"

	payloadVersion = "2"
	claimSegment   = "claim"
	nonceLength    = 32
	offerIDLength  = 16
)

var (
	// ErrInvalidLinkFormat is returned for malformed or foreign tokens.
	ErrInvalidLinkFormat = errors.New("invalid or corrupted link")
	// ErrInvalidOffer is returned when an offer fails structural validation.
	ErrInvalidOffer = errors.New("invalid offer")
	// ErrExpiredOffer is returned when an offer is past its expiry.
	ErrExpiredOffer = errors.New("offer has expired")
)

// payload is the flat wire form of an offer. Tokens are referenced by id.
type payload struct {
	V   string `json:"v"`
	OID string `json:"oid"`
	MA  string `json:"ma"`
	MT  string `json:"mt"`
	MAM string `json:"mam"`
	TT  string `json:"tt"`
	TAM string `json:"tam"`
	N   string `json:"n"`
	Exp int64  `json:"exp"`
	TS  int64  `json:"ts"`
	RP  string `json:"rp,omitempty"`
}

// Encode serializes offer into a token of the form ghost_v2_<base64url>.
func Encode(offer *types.TradeOffer) (string, error) {
	if offer == nil {
		return "", fmt.Errorf("%w: nil offer", ErrInvalidOffer)
	}

	data, err := json.Marshal(payload{
		V:   payloadVersion,
		OID: offer.OfferID,
		MA:  offer.MakerAddress,
		MT:  offer.MakerToken.ID,
		MAM: offer.MakerAmount,
		TT:  offer.TakerToken.ID,
		TAM: offer.TakerAmount,
		N:   offer.Nonce,
		Exp: offer.ExpiresAt,
		TS:  offer.CreatedAt,
		RP:  offer.RecordPlaintext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal offer: %w", err)
	}

	return strings.Join([]string{Prefix, Version, base64.RawURLEncoding.EncodeToString(data)}, Separator), nil
}

// Decode parses a token produced by Encode and resolves its tokens against
// tokens. The returned offer is always pending: status is never read from a
// link. Every failure wraps ErrInvalidLinkFormat.
func Decode(token string, tokens []types.Token) (offer *types.TradeOffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			offer, err = nil, fmt.Errorf("%w: %v", ErrInvalidLinkFormat, r)
		}
	}()

	parts := strings.SplitN(strings.TrimSpace(token), Separator, 3)
	if len(parts) != 3 || parts[0] != Prefix {
		return nil, fmt.Errorf("%w: unknown prefix", ErrInvalidLinkFormat)
	}
	if parts[1] != Version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidLinkFormat, parts[1])
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[2], "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLinkFormat, err)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLinkFormat, err)
	}
	if p.V != payloadVersion {
		return nil, fmt.Errorf("%w: payload version %q", ErrInvalidLinkFormat, p.V)
	}

	makerToken, ok := types.TokenByID(tokens, p.MT)
	if !ok {
		return nil, fmt.Errorf("%w: unknown token %q", ErrInvalidLinkFormat, p.MT)
	}
	takerToken, ok := types.TokenByID(tokens, p.TT)
	if !ok {
		return nil, fmt.Errorf("%w: unknown token %q", ErrInvalidLinkFormat, p.TT)
	}

	return &types.TradeOffer{
		OfferID:         p.OID,
		MakerAddress:    p.MA,
		MakerToken:      makerToken,
		MakerAmount:     p.MAM,
		TakerToken:      takerToken,
		TakerAmount:     p.TAM,
		Nonce:           p.N,
		ExpiresAt:       p.Exp,
		CreatedAt:       p.TS,
		Status:          types.OfferPending,
		RecordPlaintext: p.RP,
	}, nil
}

// Validate runs the structural checks an offer must pass before it is shown or
// acted upon. Expiry is reported with ErrExpiredOffer, everything else with
// ErrInvalidOffer.
func Validate(offer *types.TradeOffer, now time.Time) error {
	if offer == nil {
		return fmt.Errorf("%w: nil offer", ErrInvalidOffer)
	}
	if offer.OfferID == "" || offer.MakerAddress == "" {
		return fmt.Errorf("%w: missing offer id or maker address", ErrInvalidOffer)
	}
	if !amount.IsPositive(offer.MakerAmount) || !amount.IsPositive(offer.TakerAmount) {
		return fmt.Errorf("%w: amounts must be positive integers", ErrInvalidOffer)
	}
	if offer.ExpiresAt < types.NowMillis(now) {
		return ErrExpiredOffer
	}
	if offer.ExpiresAt <= offer.CreatedAt {
		return fmt.Errorf("%w: expiry must be after creation", ErrInvalidOffer)
	}
	if offer.MakerToken.ID == offer.TakerToken.ID {
		return fmt.Errorf("%w: cannot swap same token", ErrInvalidOffer)
	}
	return nil
}

// ExtractToken accepts a claim URL (…/claim/<token>) or a bare token and
// returns the token.
func ExtractToken(urlOrRaw string) (string, bool) {
	s := strings.TrimSpace(urlOrRaw)
	if s == "" {
		return "", false
	}

	if u, err := url.Parse(s); err == nil {
		segments := strings.Split(u.Path, "/")
		for i, segment := range segments {
			if segment == claimSegment && i+1 < len(segments) && segments[i+1] != "" {
				return segments[i+1], true
			}
		}
		if u.Scheme != "" {
			return "", false
		}
	}

	if strings.HasPrefix(s, Prefix+Separator) {
		return s, true
	}
	return "", false
}

// ShareableURL returns the claim URL for offer under origin.
func ShareableURL(origin string, offer *types.TradeOffer) (string, error) {
	token, err := Encode(offer)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(origin, "/") + "/" + claimSegment + "/" + token, nil
}

// NewOffer builds a pending offer with a fresh nonce and a provisional id. The
// id is replaced by the transaction id once the offer is created on chain.
func NewOffer(
	makerAddress string,
	makerToken types.Token, makerAmount string,
	takerToken types.Token, takerAmount string,
	expiry time.Duration,
	now time.Time,
) *types.TradeOffer {
	created := types.NowMillis(now)
	return &types.TradeOffer{
		OfferID:      "offer_" + randstr.Base62(offerIDLength),
		MakerAddress: makerAddress,
		MakerToken:   makerToken,
		MakerAmount:  makerAmount,
		TakerToken:   takerToken,
		TakerAmount:  takerAmount,
		Nonce:        randstr.Base62(nonceLength),
		CreatedAt:    created,
		ExpiresAt:    created + expiry.Milliseconds(),
		Status:       types.OfferPending,
	}
}

// NonceField derives the Aleo field literal that identifies an offer on
// chain. The keccak-256 digest is cut to 31 bytes so it stays below the field
// modulus.
func NonceField(nonce string) string {
	digest := crypto.Keccak256([]byte(nonce))
	return new(big.Int).SetBytes(digest[:31]).String() + "field"
}
