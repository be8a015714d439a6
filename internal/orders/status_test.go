package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusReturned, false},
		{StatusConfirmed, StatusPending, false},
		{StatusProcessing, StatusReturned, true},
		{StatusReturned, StatusRefunded, true},
		{StatusCancelled, StatusRefunded, true},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusRefunded, StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalAndCancellable(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusRefunded.Terminal())
	assert.False(t, StatusCancelled.Terminal())

	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRefunded} {
		assert.False(t, Cancellable(s), s)
	}
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusReturned} {
		assert.True(t, Cancellable(s), s)
	}
}

func TestRequestable(t *testing.T) {
	assert.True(t, StatusReturned.Requestable())
	assert.False(t, StatusRefunded.Requestable())
	assert.False(t, Status("shipped").Requestable())
	assert.False(t, Status("shipped").Valid())
}

func TestComputeTotals(t *testing.T) {
	items, totals := ComputeTotals([]LineItem{
		{Name: "tap", Quantity: 3, Price: 0.1},
		{Name: "fitting", Quantity: 1, Price: 19.99},
	})

	assert.Equal(t, 0.3, items[0].Subtotal)
	assert.Equal(t, 19.99, items[1].Subtotal)
	assert.Equal(t, "20.29", totals.Subtotal.StringFixed(2))
	assert.True(t, totals.Total.Equal(totals.Subtotal.Add(totals.Tax).Sub(totals.Discount)))
}
