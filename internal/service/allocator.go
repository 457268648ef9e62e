package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/iliyamo/raffle-checkout/internal/model"
)

// NumberAllocator hands out blocks of raffle numbers.  It holds no state of
// its own: uniqueness is enforced by the NumberSource, which must be bound
// to the confirmation transaction so that a rollback releases the block.
type NumberAllocator struct{}

// Allocate reserves count numbers for purchaseID and checks that the source
// returned exactly count distinct numbers in ascending order.
func (NumberAllocator) Allocate(ctx context.Context, src model.NumberSource, purchaseID string, count int) (model.RaffleNumbers, error) {
	if count <= 0 {
		return nil, errors.Errorf("allocate: invalid count %d", count)
	}
	nums, err := src.ReserveNumbers(ctx, purchaseID, count)
	if err != nil {
		return nil, errors.Wrap(err, "reserve numbers")
	}
	if len(nums) != count {
		return nil, errors.Errorf("allocate: got %d numbers, want %d", len(nums), count)
	}
	for i := 1; i < len(nums); i++ {
		if nums[i] <= nums[i-1] {
			return nil, errors.Errorf("allocate: numbers not strictly ascending at index %d", i)
		}
	}
	return nums, nil
}
