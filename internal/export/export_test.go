package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/agentdoodle/doodle-server/internal/dto"
)

func TestOrders_Workbook(t *testing.T) {
	orders := []dto.OrderDTO{
		{
			ID:      "order-1",
			Status:  "shipped",
			Email:   "buyer@example.com",
			AgentID: "agent-1",
			Items: []dto.OrderItemDTO{
				{Name: "Widget", Quantity: 2},
				{Name: "Gadget", Quantity: 1},
			},
			Subtotal:     dto.PriceDTO{Value: 200, Currency: "EUR"},
			TotalInclTax: dto.PriceDTO{Value: 246, Currency: "EUR"},
			CreatedAt:    "2026-08-01T12:00:00Z",
		},
		{
			ID:     "order-2",
			Status: "new",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Orders(&buf, orders))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(ordersSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per order")

	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "Total", rows[0][8])

	assert.Equal(t, "order-1", rows[1][0])
	assert.Equal(t, "shipped", rows[1][1])
	assert.Equal(t, "3", rows[1][4], "item count sums quantities")
	assert.Equal(t, "246", rows[1][8])
	assert.Equal(t, "EUR", rows[1][9])

	assert.Equal(t, "order-2", rows[2][0])
}

func TestOrders_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Orders(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(ordersSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}
