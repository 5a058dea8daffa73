package workflow

import (
	"context"
	"time"

	"github.com/dsrph/registry_backend/models"
	"github.com/sirupsen/logrus"
)

// DedupAuditor is the nightly sweep for near-duplicates that slipped past
// ingestion, typically pairs persisted by concurrent workers before either
// was visible to the other's probe. It only flags pairs for manual review;
// reconciliation of live entities is always a human decision.
type DedupAuditor struct {
	stores *Stores
	cfg    PipelineConfig
	logger *logrus.Logger
}

func NewDedupAuditor(stores *Stores, cfg PipelineConfig, logger *logrus.Logger) *DedupAuditor {
	return &DedupAuditor{stores: stores, cfg: cfg, logger: logger}
}

// Run walks the active households in pages, probes each against its blocking
// group, and flags pairs at or above the review threshold. Flagging is
// idempotent per pair, so repeated runs do not pile up duplicates. Returns
// the number of newly examined pairs that were flagged.
func (d *DedupAuditor) Run(ctx context.Context) (int, error) {
	started := time.Now()
	flagged := 0
	offset := 0
	pageSize := d.cfg.ArchiveBatchSize

	for {
		if err := ctx.Err(); err != nil {
			return flagged, err
		}
		households, err := d.stores.Households.ListActive(ctx, offset, pageSize)
		if err != nil {
			return flagged, err
		}
		if len(households) == 0 {
			break
		}

		for i := range households {
			n, err := d.auditOne(ctx, &households[i])
			if err != nil {
				d.logger.WithFields(logrus.Fields{"household_id": households[i].ID}).
					WithError(err).Error("dedup audit failed for household")
				continue
			}
			flagged += n
		}
		offset += len(households)
	}

	d.logger.WithFields(logrus.Fields{
		"flagged":  flagged,
		"duration": time.Since(started).String(),
	}).Info("dedup audit finished")
	return flagged, nil
}

func (d *DedupAuditor) auditOne(ctx context.Context, hh *models.Household) (int, error) {
	probe := householdCandidate(hh)
	candidates, err := d.stores.Households.Candidates(ctx, probe)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, cand := range candidates {
		if cand.EntityID == hh.ID {
			continue
		}
		// Each pair is examined once, from its lower-id side.
		if cand.EntityID < hh.ID {
			continue
		}
		score := Similarity(probe, cand)
		if score < d.cfg.ReviewThreshold {
			continue
		}

		flag := &models.DuplicateReviewFlag{
			EntityType:      "HOUSEHOLD",
			EntityID:        hh.ID,
			CandidateID:     cand.EntityID,
			SimilarityScore: score,
		}
		err := d.stores.InTx(ctx, func(tx *Stores) error {
			if err := tx.Reviews.Flag(ctx, flag); err != nil {
				return err
			}
			return tx.Outbox.Append(ctx, models.EventReviewFlagged, "HOUSEHOLD", hh.ID, "",
				map[string]any{"candidate_id": cand.EntityID, "similarity_score": score})
		})
		if err != nil {
			return flagged, err
		}
		flagged++
	}
	return flagged, nil
}
