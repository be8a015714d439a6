package orders

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

const invoiceQRSize = 256

// WriteInvoice renders a one-page PDF invoice for order to w. The QR code
// encodes the order number so staff can look the order up at the counter.
func WriteInvoice(w io.Writer, order Order, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	qrPNG, err := qrcode.Encode(order.OrderNumber, qrcode.Medium, invoiceQRSize)
	if err != nil {
		return fmt.Errorf("invoice qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Invoice")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 8, "Order: "+order.OrderNumber)
	pdf.Ln(6)
	pdf.Cell(0, 8, "Date: "+order.CreatedAt.In(loc).Format("02 Jan 2006 15:04"))
	pdf.Ln(6)
	pdf.Cell(0, 8, "Status: "+string(order.Status))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Payment: %s (%s)", order.PaymentDetails.Method, order.PaymentDetails.Status))
	pdf.Ln(12)

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 20, 40, 40, false, imageOpts, 0, "")

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(90, 8, "Item", "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 8, "Qty", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, "Price", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, "Subtotal", "1", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, item := range order.Items {
		pdf.CellFormat(90, 8, item.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, money(item.Price), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, money(item.Subtotal), "1", 1, "R", false, 0, "")
	}

	pdf.Ln(4)
	for _, row := range []struct {
		label string
		value float64
	}{
		{"Subtotal", order.Subtotal},
		{"Tax", order.Tax},
		{"Discount", order.Discount},
		{"Total", order.TotalAmount},
	} {
		pdf.CellFormat(145, 8, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, money(row.value), "", 1, "R", false, 0, "")
	}

	return pdf.Output(w)
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
