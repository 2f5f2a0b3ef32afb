package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rollguard/internal/auditchain/models"
	"rollguard/internal/auditchain/store"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
)

// Verifier recomputes the hash chain and records one block per entry.
// It never repairs the log.
type Verifier struct {
	store    Store
	tx       TxRunner
	recorder *Recorder
	opts     options
}

// NewVerifier creates a verifier. When recorder is non-nil every pass is
// itself recorded on the chain after its blocks are written.
func NewVerifier(store Store, tx TxRunner, recorder *Recorder, opts ...Option) *Verifier {
	return &Verifier{store: store, tx: tx, recorder: recorder, opts: buildOptions(opts)}
}

// VerifyHashChain checks every entry against the hash computed from its
// predecessor, then checks that the log ends at the recorded chain head so
// removed trailing entries are caught. Entries and head are read from one
// snapshot so concurrent appends cannot produce spurious mismatches.
func (v *Verifier) VerifyHashChain(ctx context.Context) (*models.Verification, error) {
	start := time.Now()

	var (
		entries []*models.Entry
		head    *store.Head
	)
	err := v.tx.RunInSnapshot(ctx, func(ctx context.Context) error {
		var err error
		if entries, err = v.store.ListOrdered(ctx); err != nil {
			return err
		}
		head, err = v.store.ReadHead(ctx)
		return err
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read audit log")
	}

	verifiedAt := v.opts.now(ctx).UTC().Truncate(time.Microsecond)
	result, blocks := verifyEntries(id.VerificationID(uuid.New()), entries, verifiedAt)
	checkHead(result, entries, head)

	err = v.tx.RunInTx(ctx, func(ctx context.Context) error {
		return v.store.InsertBlocks(ctx, blocks)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist verification blocks")
	}

	if result.ChainHealth == models.ChainCompromised {
		v.opts.logger.WarnContext(ctx, "audit hash chain compromised",
			"verification_id", result.VerificationID.String(),
			"invalid_blocks", result.InvalidBlocks,
			"first_invalid_seq", result.FirstInvalidSeq,
			"head_mismatch", result.HeadMismatch,
		)
	}
	if v.opts.metrics != nil {
		v.opts.metrics.ObserveVerification(string(result.ChainHealth), result.InvalidBlocks, time.Since(start).Seconds())
	}

	if v.recorder != nil {
		_, err := v.recorder.Record(ctx, models.Event{
			Action:     models.ActionChainVerified,
			EntityType: models.EntityAuditChain,
			EntityID:   result.VerificationID.String(),
			Details: map[string]any{
				"total_blocks":      result.TotalBlocks,
				"invalid_blocks":    result.InvalidBlocks,
				"first_invalid_seq": result.FirstInvalidSeq,
				"head_mismatch":     result.HeadMismatch,
				"chain_health":      result.ChainHealth,
			},
		})
		if err != nil {
			v.opts.logger.ErrorContext(ctx, "failed to record verification pass", "error", err)
		}
	}
	return result, nil
}

// Blocks returns the blocks written by an earlier pass.
func (v *Verifier) Blocks(ctx context.Context, verificationID id.VerificationID) ([]*models.Block, error) {
	blocks, err := v.store.ListBlocks(ctx, verificationID)
	if err != nil {
		return nil, translateNotFound(err, "verification not found")
	}
	return blocks, nil
}

// verifyEntries chains forward from the genesis hash using computed hashes,
// so one altered entry invalidates every entry after it.
func verifyEntries(verificationID id.VerificationID, entries []*models.Entry, verifiedAt time.Time) (*models.Verification, []*models.Block) {
	result := &models.Verification{
		VerificationID: verificationID,
		TotalBlocks:    len(entries),
		ChainHealth:    models.ChainHealthy,
		VerifiedAt:     verifiedAt,
	}
	blocks := make([]*models.Block, 0, len(entries))

	computedPrev := models.GenesisHash
	for _, e := range entries {
		computed := e.ComputeHash(computedPrev)
		valid := e.PreviousHash == computedPrev && e.EntryHash == computed
		blocks = append(blocks, &models.Block{
			VerificationID: verificationID,
			EntryID:        e.ID,
			Seq:            e.Seq,
			PreviousHash:   computedPrev,
			StoredHash:     e.EntryHash,
			ComputedHash:   computed,
			IsValid:        valid,
			VerifiedAt:     verifiedAt,
		})
		if !valid {
			result.InvalidBlocks++
			if result.FirstInvalidSeq == 0 {
				result.FirstInvalidSeq = e.Seq
			}
		}
		computedPrev = computed
	}
	if result.InvalidBlocks > 0 {
		result.ChainHealth = models.ChainCompromised
	}
	return result, blocks
}

// checkHead compares the last entry with the head row. A mismatch counts as
// one invalid result. Unless an earlier block already failed,
// FirstInvalidSeq becomes the tail seq when only its hash differs, or the
// first seq past the shorter of log and head.
func checkHead(result *models.Verification, entries []*models.Entry, head *store.Head) {
	lastSeq, lastHash := int64(0), models.GenesisHash
	if n := len(entries); n > 0 {
		lastSeq, lastHash = entries[n-1].Seq, entries[n-1].EntryHash
	}
	if lastSeq == head.LastSeq && lastHash == head.LastHash {
		return
	}

	result.HeadMismatch = true
	result.InvalidBlocks++
	result.ChainHealth = models.ChainCompromised
	if result.FirstInvalidSeq != 0 {
		return
	}
	switch {
	case lastSeq == head.LastSeq:
		result.FirstInvalidSeq = lastSeq
	case lastSeq < head.LastSeq:
		result.FirstInvalidSeq = lastSeq + 1
	default:
		result.FirstInvalidSeq = head.LastSeq + 1
	}
}
