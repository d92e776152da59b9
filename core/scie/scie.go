// Package scie reads the on-disk scie layout: a jump binary head, a payload
// file region, a trailing zip, and the JSON lift manifest after the zip's end
// of central directory record.
package scie

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/scietool/jump/core/config"
)

// MaxManifestSize bounds the manifest tail; together with the maximum EOCD
// record it fixes the backward scan window at 65 557 bytes.
const MaxManifestSize = 0xFFFF

// See 4.3.16 "End of central directory record" in the PKWARE APPNOTE for the
// record layout relied on here.
var eocdSignature = []byte{0x50, 0x4b, 0x05, 0x06}

const eocdFixedSize = 22

// EndOfZip scans data backward for the trailing zip's end of central
// directory record and returns the offset one past the record and its
// comment. maximumTrailerSize widens the scan window for bytes that may
// follow the zip.
func EndOfZip(data []byte, maximumTrailerSize int) (int, error) {
	maxScan := eocdFixedSize + 0xFFFF + maximumTrailerSize
	lastStart := len(data) - eocdFixedSize
	if lastStart < 0 {
		return 0, fmt.Errorf("the file is too short to hold a zip end of central directory record")
	}
	minStart := len(data) - maxScan
	if minStart < 0 {
		minStart = 0
	}
	for start := lastStart; start >= minStart; start-- {
		if !bytes.Equal(data[start:start+4], eocdSignature) {
			continue
		}
		commentSize := int(binary.LittleEndian.Uint16(data[start+20 : start+22]))
		end := start + eocdFixedSize + commentSize
		if end > len(data) {
			return 0, fmt.Errorf("invalid end of central directory record found starting at byte %d: comment extends past EOF", start)
		}
		return end, nil
	}
	return 0, fmt.Errorf("failed to find application zip end of central directory record within the last %d bytes of the file", maxScan)
}

// A Scie is a fully read scie file with its manifest parsed.
type Scie struct {
	Path string
	Data []byte

	Config *config.Config
	Jump   config.Jump
	Lift   config.Lift

	// PayloadEnd is the offset one past the trailing zip; the manifest spans
	// [PayloadEnd, len(Data)).
	PayloadEnd int
}

// Load reads the file at path and parses the lift manifest from its tail.
// The manifest must name the embedded jump; a file without one is not a
// runnable scie.
func Load(path string) (*Scie, error) {
	// #nosec G304 -- the scie path is the executing binary or explicit caller input.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scie at %s: %w", path, err)
	}
	return LoadData(path, data)
}

// LoadData parses an in-memory scie image.
func LoadData(path string, data []byte) (*Scie, error) {
	endOfZip, err := EndOfZip(data, MaxManifestSize)
	if err != nil {
		return nil, err
	}
	manifestBytes := data[endOfZip:]
	parsed, err := config.Parse(manifestBytes)
	if err != nil {
		return nil, fmt.Errorf("parse lift manifest of %s: %w", path, err)
	}
	parsed.Size = len(manifestBytes)
	if parsed.Scie.Jump == nil {
		return nil, fmt.Errorf("the lift manifest of %s does not identify its scie-jump", path)
	}
	if parsed.Scie.Jump.Size > uint64(endOfZip) {
		return nil, fmt.Errorf("the lift manifest of %s declares a %d byte scie-jump but only %d bytes precede the manifest", path, parsed.Scie.Jump.Size, endOfZip)
	}
	return &Scie{
		Path:       path,
		Data:       data,
		Config:     parsed,
		Jump:       *parsed.Scie.Jump,
		Lift:       parsed.Scie.Lift,
		PayloadEnd: endOfZip,
	}, nil
}

// Payload returns the byte region holding the embedded payload files, from
// the end of the jump head to the end of the trailing zip.
func (s *Scie) Payload() []byte {
	return s.Data[s.Jump.Size:s.PayloadEnd]
}

// Manifest returns the raw manifest bytes at the scie tail.
func (s *Scie) Manifest() []byte {
	return s.Data[s.PayloadEnd:]
}
