package pumpfun

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	solanago "github.com/gagliardetto/solana-go"
)

// ErrNoViableBump is returned when every bump seed lands on the curve.
var ErrNoViableBump = errors.New("no viable bump seed")

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

// FindProgramAddress derives a program address from seeds.
// Bumps are tried from 255 down to 1; the first hash that is not a valid ed25519
// point is the address.
func FindProgramAddress(seeds [][]byte, programID solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	if len(seeds) >= maxSeeds {
		return solanago.PublicKey{}, 0, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return solanago.PublicKey{}, 0, fmt.Errorf("seed longer than %d bytes", maxSeedLength)
		}
	}

	for bump := 255; bump > 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(programID[:])
		h.Write([]byte(pdaMarker))

		var candidate solanago.PublicKey
		copy(candidate[:], h.Sum(nil))

		if !isOnCurve(candidate[:]) {
			return candidate, uint8(bump), nil
		}
	}

	return solanago.PublicKey{}, 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// DeriveBondingCurveAddress returns the bonding curve PDA for mint.
// Seeds: ["bonding-curve", mint].
func DeriveBondingCurveAddress(mint solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte(BondingCurveSeed), mint[:]}, ProgramID)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("derive bonding curve: %w", err)
	}
	return addr, nil
}

// DeriveAssociatedAccountAddress returns owner's associated token account for mint.
// Seeds: [owner, token program, mint] under the associated token program.
func DeriveAssociatedAccountAddress(owner, mint solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{owner[:], TokenProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("derive associated account: %w", err)
	}
	return addr, nil
}

// DeriveMetadataAddress returns the Metaplex metadata PDA for mint.
// Seeds: ["metadata", metadata program, mint].
func DeriveMetadataAddress(mint solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{[]byte(MetadataSeed), MetadataProgramID[:], mint[:]},
		MetadataProgramID,
	)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("derive metadata account: %w", err)
	}
	return addr, nil
}
