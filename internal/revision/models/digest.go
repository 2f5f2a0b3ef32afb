package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// ComputeDigest hashes the batch header and its findings. Flag status is
// excluded so closing a flag by hand does not invalidate a draft.
func (b *Batch) ComputeDigest(flags []*Flag) string {
	h := sha256.New()
	fmt.Fprintf(h, "batch|%s|%s|%s|%s|%d|%s|%s\n",
		b.ID, b.Region, formatTime(b.RangeFrom), formatTime(b.RangeTo),
		b.ScanCap, b.CreatedBy, b.CreatedAt.UTC().Format(time.RFC3339Nano),
	)

	sorted := make([]*Flag, len(flags))
	copy(sorted, flags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })
	for _, f := range sorted {
		writeFlag(h, f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeFlag(w io.Writer, f *Flag) {
	related := ""
	if f.RelatedVoterID != nil {
		related = f.RelatedVoterID.String()
	}
	fmt.Fprintf(w, "flag|%s|%s|%s|%s|%s|%s\n",
		f.ID, f.VoterID, related, f.Type,
		strconv.FormatFloat(f.Confidence, 'f', 4, 64), f.Reason,
	)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
