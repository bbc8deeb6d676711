package chainmodel

import "time"

// Normative constants, per the specification's external-interfaces table.
const (
	ZoneDifficulty    = 28
	ZoneMinDifficulty = 22
	SignerDifficulty  = 16
	KeystoreDifficulty = 23

	BlockSignersAll   = 7
	BlockSignersMin   = 2
	BlockSignersStart = 0

	BlockSignersStartRandom = 180 * time.Second

	NewDomainsInterval = 86400 * time.Second
	DomainLifetime     = 365 * 86400 * time.Second

	ChainVersion = 0
	DBVersion    = 0

	// ZoneMaxLength bounds a zone's name field length. Sourced from the
	// original implementation's constants module; spec.md is silent on
	// it but the original enforces it on every zone payload.
	ZoneMaxLength = 10
)

// The constants below are named in the original implementation's
// constants module but belong to the network/peer-gossip and UI layers,
// both out of scope for this module (spec.md §1). Kept here only for
// documentation continuity; no operation in this repo reads them.
const (
	MaxReconnects      = 5
	PollTimeout        = 200 * time.Millisecond
	MaxPacketSize      = 8192
	MaxReadBlockTime   = 10 * time.Second
	MaxIdleSeconds     = 300
	MaxNodes           = 20
	UIRefreshDelayMS   = 500
	LogRefreshDelaySec = 10
)
