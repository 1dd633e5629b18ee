package ledger

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

// TestLedgerInvariants replays random restock/consume sequences (in cents:
// positive restocks, negative consumes) and checks that quantity never goes
// negative and always equals the rounded sum of signed movements.
func TestLedgerInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	parameters.MaxSize = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("quantity equals signed movement sum and stays non-negative", prop.ForAll(
		func(steps []int64) bool {
			h := newHarness(t, nil)
			ctx := context.Background()
			seed := h.restock(t, enums.FeedTypeGrower, globalRef(), "1")
			expected := decimal.NewFromInt(1)

			for _, cents := range steps {
				amount := decimal.New(cents, -2).Abs()
				if cents == 0 {
					continue
				}
				if cents > 0 {
					if _, err := h.svc.Restock(ctx, RestockCommand{FeedType: enums.FeedTypeGrower, Location: globalRef(), QuantityKg: amount}); err != nil {
						return false
					}
					expected = quantity.Sum(expected, amount)
					continue
				}
				_, err := h.svc.ConsumeItem(ctx, ConsumeItemCommand{StockItemID: seed.Item.ID, QuantityKg: amount, LotID: "L-prop"})
				switch {
				case err == nil:
					expected = quantity.Sum(expected, amount.Neg())
				case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
					if !amount.GreaterThan(expected) {
						return false
					}
				default:
					return false
				}
			}

			item, err := h.store.GetByID(ctx, seed.Item.ID)
			if err != nil || item.QuantityKg.IsNegative() {
				return false
			}
			var movements []models.FeedStockMovement
			if err := h.db.Where("stock_item_id = ?", seed.Item.ID).Find(&movements).Error; err != nil {
				return false
			}
			sum := decimal.Zero
			for _, m := range movements {
				sum = quantity.Sum(sum, m.SignedQuantity())
			}
			return item.QuantityKg.Equal(expected) && sum.Equal(item.QuantityKg)
		},
		gen.SliceOf(gen.Int64Range(-40000, 40000)),
	))

	properties.TestingRun(t)
}
