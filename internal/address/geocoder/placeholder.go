package geocoder

import (
	"encoding/binary"
	"encoding/hex"

	"rollguard/internal/address/models"
)

// PlaceholderConfidence is low enough that placeholder geocodes always
// raise low_geocode_confidence.
const PlaceholderConfidence = 0.1

// Placeholder derives a stable coordinate from the address digest. The same
// digest always maps to the same point.
func Placeholder(digest, canonical string) *models.Geocode {
	raw, err := hex.DecodeString(digest)
	if err != nil || len(raw) < 16 {
		raw = make([]byte, 16)
	}
	lat := float64(binary.BigEndian.Uint64(raw[0:8])) / float64(^uint64(0))
	lon := float64(binary.BigEndian.Uint64(raw[8:16])) / float64(^uint64(0))
	return &models.Geocode{
		Latitude:         lat*180 - 90,
		Longitude:        lon*360 - 180,
		Confidence:       PlaceholderConfidence,
		FormattedAddress: canonical,
		Provider:         models.PlaceholderProvider,
	}
}
