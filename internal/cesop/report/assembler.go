package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/altpaynet/regreport/internal/cesop"
	"github.com/altpaynet/regreport/internal/cesop/dataset"
	"github.com/altpaynet/regreport/internal/cesop/merchant"
	"github.com/altpaynet/regreport/internal/cesop/qualifying"

	log "github.com/sirupsen/logrus"
)

// Assembler drives the full pipeline: qualifying cards, dataset,
// merchant resolution, and per-merchant grouping with a second
// transaction-level domestic-exclusion pass.
type Assembler struct {
	finder   *qualifying.Finder
	builder  *dataset.Builder
	resolver *merchant.Resolver
	psp      cesop.PSP
}

// Params selects the reporting period and optional scope.
type Params struct {
	Quarter   int
	Year      int
	Threshold int

	MerchantIDs []uint64
	ShopIDs     []uint64
}

// NewAssembler wires the assembler with its pipeline stages.
func NewAssembler(finder *qualifying.Finder, builder *dataset.Builder, resolver *merchant.Resolver, psp cesop.PSP) *Assembler {
	return &Assembler{finder: finder, builder: builder, resolver: resolver, psp: psp}
}

// Assemble runs the pipeline and returns the bundle, or a structured
// no-data result. Only infrastructure failures surface as errors.
func (a *Assembler) Assemble(ctx context.Context, p Params) (Result, error) {
	window, errWindow := cesop.QuarterWindow(p.Quarter, p.Year)
	if errWindow != nil {
		return Result{}, errWindow
	}

	cards, errFind := a.finder.FindQualifying(ctx, qualifying.Params{
		Window:      window,
		Threshold:   p.Threshold,
		MerchantIDs: p.MerchantIDs,
		ShopIDs:     p.ShopIDs,
	})
	if errFind != nil {
		return Result{}, errFind
	}
	if len(cards) == 0 {
		return Result{Success: false, Message: "no qualifying transactions found"}, nil
	}

	records, errBuild := a.builder.BuildDataset(ctx, window, cards, p.MerchantIDs, p.ShopIDs)
	if errBuild != nil {
		return Result{}, errBuild
	}
	if len(records) == 0 {
		return Result{Success: false, Message: "no transactions matched the qualifying cards"}, nil
	}

	grouped := map[uint64][]cesop.TransactionRecord{}
	merchantIDs := make([]uint64, 0)
	for _, record := range records {
		if _, ok := grouped[record.MerchantID]; !ok {
			merchantIDs = append(merchantIDs, record.MerchantID)
		}
		grouped[record.MerchantID] = append(grouped[record.MerchantID], record)
	}
	sort.Slice(merchantIDs, func(i, j int) bool { return merchantIDs[i] < merchantIDs[j] })

	profiles, errResolve := a.resolver.Resolve(ctx, merchantIDs)
	if errResolve != nil {
		return Result{}, errResolve
	}

	bundle := &Bundle{
		Quarter:   p.Quarter,
		Year:      p.Year,
		Threshold: p.Threshold,
		PSP:       a.psp,
	}
	currencies := map[string]struct{}{}

	for _, merchantID := range merchantIDs {
		transactions := grouped[merchantID]

		profile, ok := profiles[merchantID]
		if !ok {
			// Documented policy: merchants absent from both stores are
			// dropped, recorded on the skip list for auditors.
			bundle.Skipped = append(bundle.Skipped, SkippedMerchant{
				MerchantID:       merchantID,
				TransactionCount: len(transactions),
				Reason:           "merchant not found in primary or legacy store",
			})
			log.WithField("merchant_id", merchantID).
				Warn("report: skipping unresolved merchant")
			continue
		}

		kept := make([]cesop.TransactionRecord, 0, len(transactions))
		for _, record := range transactions {
			// Second domestic pass at transaction level: the group-level
			// exclusion works on aggregated fingerprints, so a stray
			// per-transaction country match is still filtered here.
			if cesop.SameCountry(profile.Country, record.IssuingCountry) {
				continue
			}
			kept = append(kept, record)
		}
		if len(kept) == 0 {
			bundle.Skipped = append(bundle.Skipped, SkippedMerchant{
				MerchantID:       merchantID,
				TransactionCount: len(transactions),
				Reason:           "all transactions domestic after resolution",
			})
			continue
		}

		for _, record := range kept {
			currencies[record.Currency] = struct{}{}
			bundle.Stats.TotalAmount += record.Amount
		}
		bundle.Stats.TransactionCount += len(kept)
		bundle.Groups = append(bundle.Groups, MerchantGroup{
			Profile:      profile,
			Transactions: kept,
		})
	}

	if len(bundle.Groups) == 0 {
		return Result{Success: false, Message: "no qualifying transactions found"}, nil
	}

	bundle.Stats.MerchantCount = len(bundle.Groups)
	bundle.Stats.CurrencyCount = len(currencies)

	return Result{
		Success: true,
		Message: fmt.Sprintf("assembled %d merchants, %d transactions",
			bundle.Stats.MerchantCount, bundle.Stats.TransactionCount),
		Bundle: bundle,
	}, nil
}
