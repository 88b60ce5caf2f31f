// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hashing wraps the keccak256 digest and ECDSA recovery used for
// operation hashing and transmitter signature checks.
package hashing

import (
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/crypto"
)

// personalPrefix is prepended before hashing so transmitters can sign
// operations through a standard personal-sign path.
const personalPrefix = "\x19Ethereum Signed Message:\n32"

var ErrSignatureCheckFailed = errors.New("signature check failed")

// SignatureLen is the length of an [R || S || V] recoverable signature.
const SignatureLen = 65

// Signature is a recoverable secp256k1 signature in [R || S || V] form.
// V may be 0/1 or the legacy 27/28; recovery normalizes it.
type Signature [SignatureLen]byte

func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureLen {
		return sig, ErrSignatureCheckFailed
	}
	copy(sig[:], b)
	return sig, nil
}

// Keccak256 hashes the concatenation of its arguments.
func Keccak256(data ...[]byte) common.Hash {
	return common.BytesToHash(crypto.Keccak256(data...))
}

// EthSignedDigest returns keccak(prefix || keccak(msg)).
func EthSignedDigest(msg []byte) common.Hash {
	inner := crypto.Keccak256(msg)
	return common.BytesToHash(crypto.Keccak256([]byte(personalPrefix), inner))
}

// RecoverSigner returns the address that produced [sig] over [digest].
func RecoverSigner(digest common.Hash, sig Signature) (common.Address, error) {
	raw := sig
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	if raw[64] > 1 {
		return common.Address{}, ErrSignatureCheckFailed
	}
	pub, err := crypto.SigToPub(digest[:], raw[:])
	if err != nil {
		return common.Address{}, ErrSignatureCheckFailed
	}
	return common.Address(crypto.PubkeyToAddress(*pub)), nil
}
