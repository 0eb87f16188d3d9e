// ABOUTME: XLSX export of tenant order data
// ABOUTME: Builds a styled workbook with one row per order, totals precomputed

package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/agentdoodle/doodle-server/internal/dto"
)

const ordersSheet = "Orders"

var orderHeaders = []string{
	"ID", "Status", "Email", "Agent", "Items", "Subtotal", "Tax",
	"Shipping", "Total", "Currency", "Created At", "Updated At",
}

var orderColumnWidths = []float64{38, 12, 28, 38, 10, 12, 12, 12, 12, 10, 22, 22}

// Orders writes a styled XLSX workbook of the given orders to w. The caller
// decides what a row set means: one tenant, one agent, a filtered page.
func Orders(w io.Writer, orders []dto.OrderDTO) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(ordersSheet)
	if err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("deleting default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	for col, header := range orderHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("converting coordinates: %w", err)
		}
		if err := f.SetCellValue(ordersSheet, cell, header); err != nil {
			return fmt.Errorf("setting header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(ordersSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("setting header style: %w", err)
		}
	}

	for col, width := range orderColumnWidths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("converting column number: %w", err)
		}
		if err := f.SetColWidth(ordersSheet, name, name, width); err != nil {
			return fmt.Errorf("setting column width: %w", err)
		}
	}

	// Keep the header visible while scrolling.
	if err := f.SetPanes(ordersSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing header pane: %w", err)
	}

	for i, o := range orders {
		row := []any{
			o.ID, o.Status, o.Email, o.AgentID, countItems(o.Items),
			o.Subtotal.Value, o.SubtotalTaxValue.Value,
			o.ShippingPriceInclTax.Value, o.TotalInclTax.Value,
			currencyOf(o), o.CreatedAt, o.UpdatedAt,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("converting coordinates: %w", err)
		}
		if err := f.SetSheetRow(ordersSheet, cell, &row); err != nil {
			return fmt.Errorf("writing order row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func countItems(items []dto.OrderItemDTO) float64 {
	var n float64
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

func currencyOf(o dto.OrderDTO) string {
	for _, c := range []string{o.TotalInclTax.Currency, o.Subtotal.Currency} {
		if c != "" {
			return strings.ToUpper(c)
		}
	}
	return "USD"
}
