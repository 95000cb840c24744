package importer

import (
	"context"
	"time"

	"catalog-importer/internal/common/logging"
	"catalog-importer/internal/records"
	"catalog-importer/internal/storage"
	"catalog-importer/internal/validation"
)

// Enrichment outcomes as they appear in logs. Skipped and empty both
// persist empty metadata but are reported separately.
const (
	enrichmentSkipped = "skipped"
	enrichmentEmpty   = "empty"
	enrichmentApplied = "applied"
)

// result is one record's terminal outcome
type result struct {
	index           int
	state           State
	failureWriteErr bool
	duration        time.Duration
}

// process drives one record to its terminal state. The record runs on a
// context detached from cancellation so a started record always finishes.
func (p *Pipeline) process(ctx context.Context, rec records.Record) result {
	ctx = context.WithoutCancel(ctx)
	started := p.clock.Now()

	res := p.processRecord(ctx, rec)
	res.duration = p.clock.Now().Sub(started)
	return res
}

func (p *Pipeline) processRecord(ctx context.Context, rec records.Record) result {
	logger := p.logger.WithContext(ctx).WithFields(
		logging.Int("line", rec.Line),
		logging.String("sku", rec.SKU()),
	)

	normalized := records.Normalize(rec)
	if messages := validation.ValidateRecord(normalized); !messages.Valid() {
		logger.Debug("Record is invalid", logging.Strings("errors", messages))
		return p.fail(ctx, logger, rec, StateInvalid, storage.StageValidation, storage.ValidationReason(messages))
	}

	product, err := records.ToProduct(normalized)
	if err != nil {
		logger.Warn("Valid record could not be converted", logging.Err(err))
		return p.fail(ctx, logger, rec, StateInvalid, storage.StageValidation, storage.ValidationReason([]string{err.Error()}))
	}

	metadata := storage.EmptyMetadata()
	enrichment := enrichmentSkipped
	if p.enricher != nil {
		outcome := p.enricher.Enrich(ctx, product)
		if !outcome.OK {
			logger.Warn("Enrichment failed",
				logging.String("error", outcome.Error),
				logging.Int("attempts", outcome.Attempts),
			)
			return p.fail(ctx, logger, rec, StateAPIFailed, storage.StageEnrichment, storage.APIErrorReason(outcome.Error))
		}
		enrichment = enrichmentEmpty
		if len(outcome.Data) > 0 {
			metadata = outcome.Data
			enrichment = enrichmentApplied
		}
	}

	err = p.store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.UpsertProduct(ctx, storage.ProductRecord{
			Product:   product,
			Metadata:  metadata,
			RunID:     p.config.RunID,
			UpdatedAt: p.clock.Now(),
		})
	})
	if err != nil {
		logger.Warn("Upsert failed", logging.Err(err))
		return p.fail(ctx, logger, rec, StatePersistFailed, storage.StagePersistence, storage.DBErrorReason(err.Error()))
	}

	logger.Debug("Record persisted", logging.String("enrichment", enrichment))
	return result{state: StatePersisted}
}

// fail writes the failure record in its own transaction. The state is
// terminal whether or not that write succeeds.
func (p *Pipeline) fail(ctx context.Context, logger logging.Logger, rec records.Record, state State, stage storage.Stage, reason map[string]any) result {
	err := p.store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.RecordFailure(ctx, storage.FailureRecord{
			RunID:     p.config.RunID,
			Line:      rec.Line,
			SKU:       rec.SKU(),
			Stage:     stage,
			Raw:       rec.Raw(),
			Reason:    reason,
			CreatedAt: p.clock.Now(),
		})
	})
	if err != nil {
		logger.Error("Failed to write failure record", err, logging.String("stage", string(stage)))
		return result{state: state, failureWriteErr: true}
	}
	return result{state: state}
}
