package enet

import "errors"

var (
	// ErrNoHardware is returned by every Device operation after the
	// one-time probe at Configure failed. The probe is never retried.
	ErrNoHardware = errors.New("enet: hardware absent")
	// ErrTxRingFull is returned by SendFrame when no transmit
	// descriptor is free. Not fatal: retry once a descriptor drains.
	ErrTxRingFull = errors.New("enet: tx ring full")
	// ErrFrameTooLarge is returned by SendFrame for frames exceeding
	// the maximum frame size.
	ErrFrameTooLarge = errors.New("enet: frame exceeds max frame size")
	// ErrFrameEmpty is returned by SendFrame for frames shorter than an
	// Ethernet header: a headerless frame is a caller bug, not padding
	// work for the MAC.
	ErrFrameEmpty = errors.New("enet: frame shorter than header")
	// ErrShortBuffer is returned by RecvFrame when the destination
	// buffer is smaller than the pending frame. The frame is kept.
	ErrShortBuffer = errors.New("enet: destination buffer too short")
	// ErrNotConfigured is returned when the Device is used before a
	// successful Configure.
	ErrNotConfigured = errors.New("enet: device not configured")
)

var (
	errInvalidConfig = errors.New("enet: invalid configuration")
	errMDIOTimeout   = errors.New("enet: MDIO transaction timeout")
	errClause45      = errors.New("enet: clause 45 unsupported")
)
