package finlife

import (
	"context"
)

// upsertBatch writes one batch in two passes. Products go first and their ids
// are remembered by code; options then attach through that map. Options whose
// code did not appear among the batch's products are skipped, not failed.
func upsertBatch(ctx context.Context, store Store, batch Batch) (IngestResult, error) {
	var result IngestResult
	ids := make(map[string]int64, len(batch.Products))

	for _, rec := range batch.Products {
		if rec.Code == "" {
			continue
		}
		id, err := store.UpsertProduct(ctx, productFromRecord(rec))
		if err != nil {
			return IngestResult{}, err
		}
		ids[rec.Code] = id
		result.Products++
	}

	for _, rec := range batch.Options {
		productID, ok := ids[rec.ProductCode]
		if !ok {
			result.Skipped++
			continue
		}
		if err := store.UpsertOption(ctx, optionFromRecord(productID, rec)); err != nil {
			return IngestResult{}, err
		}
		result.Options++
	}
	return result, nil
}

func productFromRecord(rec ProductRecord) Product {
	p := Product{
		Code:             rec.Code,
		Company:          rec.Company,
		Name:             rec.Name,
		JoinWay:          rec.JoinWay,
		JoinMember:       rec.JoinMember,
		JoinDeny:         JoinUnrestricted,
		MaxLimit:         rec.MaxLimit,
		EtcNote:          rec.EtcNote,
		SpecialCondition: rec.SpecialCondition,
	}
	if rec.JoinDeny != nil {
		if d := JoinDeny(*rec.JoinDeny); d.Valid() {
			p.JoinDeny = d
		}
	}
	return p
}

func optionFromRecord(productID int64, rec OptionRecord) Option {
	return Option{
		ProductID:    productID,
		SaveTerm:     rec.SaveTerm,
		Rate:         rateOrSentinel(rec.Rate),
		Rate2:        rateOrSentinel(rec.Rate2),
		RateType:     rec.RateType,
		RateTypeName: rec.RateTypeName,
	}
}

func rateOrSentinel(v *float64) float64 {
	if v == nil {
		return RateNotReported
	}
	return *v
}
