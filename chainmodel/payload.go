package chainmodel

import (
	"encoding/json"

	"github.com/guachain/guachain/errors"
)

// Record is a single DNS resource record carried by a domain payload.
type Record struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// ZonePayload is the canonical JSON shape of a Transaction with
// Class == ClassZone.
type ZonePayload struct {
	Name       string `json:"name"`
	Difficulty int    `json:"difficulty"`
	Yggdrasil  bool   `json:"yggdrasil"`
}

// DomainPayload is the canonical JSON shape of a Transaction with
// Class == ClassDomain.
//
// Domain carries the registrant's label ciphertext, encrypted under
// the registrant's own symmetric key with IV = Confirmation[:12] (see
// chain.Engine.GetMyDomains's legacy-fallback doc comment) — the
// original implementation's data.domain field.
type DomainPayload struct {
	Zone    string   `json:"zone"`
	Records []Record `json:"records"`
	Domain  []byte   `json:"domain,omitempty"`
}

// EncodeZonePayload produces the canonical JSON form used inside a
// zone transaction's Data field.
func EncodeZonePayload(p ZonePayload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeZonePayload parses a zone transaction's Data field.
func DecodeZonePayload(data []byte) (ZonePayload, error) {
	var p ZonePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ZonePayload{}, errors.New(errors.ErrInvalidArgument, "malformed zone payload", err)
	}
	return p, nil
}

// EncodeDomainPayload produces the canonical JSON form used inside a
// domain transaction's Data field.
func EncodeDomainPayload(p DomainPayload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeDomainPayload parses a domain transaction's Data field.
func DecodeDomainPayload(data []byte) (DomainPayload, error) {
	var p DomainPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return DomainPayload{}, errors.New(errors.ErrInvalidArgument, "malformed domain payload", err)
	}
	return p, nil
}

// ValidateZonePayload enforces ZONE_MAX_LENGTH on a zone's name field,
// a detail the original implementation enforces that spec.md's
// availability-query description does not spell out explicitly.
func ValidateZonePayload(p ZonePayload) error {
	if p.Name == "" {
		return errors.New(errors.ErrInvalidArgument, "zone name must not be empty")
	}
	if len(p.Name) > ZoneMaxLength {
		return errors.New(errors.ErrInvalidArgument, "zone name %q exceeds max length %d", p.Name, ZoneMaxLength)
	}
	return nil
}
