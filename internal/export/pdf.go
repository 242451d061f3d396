package export

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/zombor/petty-cash/internal/ledger"
	"github.com/zombor/petty-cash/internal/pix"
)

const (
	pageMargin = 15.0
	lineHeight = 6.0
)

type column struct {
	title string
	width float64
	align string
}

var itemColumns = []column{
	{"#", 10, "C"},
	{"Data", 22, "C"},
	{"Motivo", 50, "L"},
	{"Fornecedor", 44, "L"},
	{"Documento", 28, "L"},
	{"Valor", 26, "R"},
}

// PDF renders the report: header, totals, item table, then one page per
// proof. Proofs that cannot be converted get a page naming the file instead.
func PDF(w io.Writer, s Snapshot, proofs []Proof, convert Converter) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	writeTitle(pdf, tr)
	writeHeader(pdf, tr, s.Header)
	writeTotals(pdf, tr, s.Header.DisbursedFund, s.Totals)
	writeItems(pdf, tr, s.Items, s.Totals)
	writeSignature(pdf, tr, s.Header)

	for i, p := range proofs {
		writeProof(pdf, tr, i, p, convert)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("rendering PDF: %w", err)
	}
	return nil
}

func writeTitle(pdf *fpdf.Fpdf, tr func(string) string) {
	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(0, 10, tr("PRESTAÇÃO DE CONTAS - FUNDO FIXO"), "", 1, "C", false, 0, "")
	pdf.Ln(2)
}

func writeHeader(pdf *fpdf.Fpdf, tr func(string) string, h ledger.Header) {
	key := pix.Classify(h.PayoutKey)
	payout := pix.Format(h.PayoutKey)
	if key.Valid() {
		payout = fmt.Sprintf("%s (%s)", payout, key.Kind.Label())
	}

	rows := [][2]string{
		{"Responsável", h.HolderName},
		{"CPF/CNPJ", pix.Format(h.TaxID)},
		{"Loja", h.Store},
		{"Departamento", h.Department},
		{"Chave PIX", payout},
		{"Data", BRDate(h.ReportDate)},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(35, lineHeight, tr(row[0]+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, lineHeight, tr(orDash(row[1])), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
}

func writeTotals(pdf *fpdf.Fpdf, tr func(string) string, fund ledger.Money, t ledger.Totals) {
	stats := [][2]string{
		{"Fundo disponibilizado", BRL(fund)},
		{"Total consumido", fmt.Sprintf("%s (%d%%)", BRL(t.Consumed), ledger.UsagePercent(fund, t.Consumed))},
		{"Saldo a devolver", BRL(t.Balance)},
	}
	pdf.SetFillColor(240, 240, 240)
	for _, st := range stats {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(60, lineHeight+1, tr(st[0]), "1", 0, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		if st[0] == "Saldo a devolver" && t.Balance < 0 {
			pdf.SetTextColor(180, 0, 0)
		}
		pdf.CellFormat(60, lineHeight+1, tr(st[1]), "1", 1, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(4)
}

func writeItems(pdf *fpdf.Fpdf, tr func(string) string, items []ledger.LineItem, t ledger.Totals) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(220, 220, 220)
	for _, c := range itemColumns {
		pdf.CellFormat(c.width, lineHeight+1, tr(c.title), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	if len(items) == 0 {
		pdf.CellFormat(tableWidth(), lineHeight, tr("Nenhuma despesa lançada"), "1", 1, "C", false, 0, "")
	}
	for _, item := range items {
		values := []string{
			fmt.Sprint(item.ID),
			BRDate(item.Date),
			item.Reason,
			item.Supplier,
			item.DocumentNumber,
			BRL(item.Amount),
		}
		for i, c := range itemColumns {
			pdf.CellFormat(c.width, lineHeight, fit(pdf, tr(values[i]), c.width), "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 9)
	last := itemColumns[len(itemColumns)-1]
	pdf.CellFormat(tableWidth()-last.width, lineHeight, "TOTAL", "1", 0, "R", false, 0, "")
	pdf.CellFormat(last.width, lineHeight, tr(BRL(t.Consumed)), "1", 1, "R", false, 0, "")
}

func writeSignature(pdf *fpdf.Fpdf, tr func(string) string, h ledger.Header) {
	pdf.Ln(20)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, lineHeight, strings.Repeat("_", 50), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, lineHeight, tr(orDash(h.HolderName)), "", 1, "C", false, 0, "")
}

func writeProof(pdf *fpdf.Fpdf, tr func(string) string, index int, p Proof, convert Converter) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("Comprovante do item %d: %s", p.ItemID, p.Name)), "", 1, "L", false, 0, "")

	pngData, err := convert(p.Data, p.ContentType)
	if err != nil {
		slog.Warn("Proof not embedded in PDF", "item", p.ItemID, "name", p.Name, "error", err)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, lineHeight, tr("Este arquivo não pode ser exibido no relatório. Ele está incluído no pacote de comprovantes."), "", "L", false)
		return
	}

	name := fmt.Sprintf("proof-%d", index)
	info := pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(pngData))
	if pdf.Err() {
		// A bad image must not lose the whole report
		slog.Warn("Proof image rejected by PDF writer", "item", p.ItemID, "name", p.Name, "error", pdf.Error())
		pdf.ClearError()
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, lineHeight, tr("Este arquivo não pode ser exibido no relatório."), "", "L", false)
		return
	}

	pageW, pageH := pdf.GetPageSize()
	maxW := pageW - 2*pageMargin
	maxH := pageH - pdf.GetY() - pageMargin
	w, h := info.Width(), info.Height()
	scale := maxW / w
	if h*scale > maxH {
		scale = maxH / h
	}
	pdf.ImageOptions(name, pageMargin, pdf.GetY(), w*scale, h*scale, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
}

// fit truncates already translated text so it fits in a cell.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	const pad = 2.0
	if pdf.GetStringWidth(s) <= width-pad {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width-pad {
		s = s[:len(s)-1]
	}
	return s + "..."
}

func tableWidth() float64 {
	var total float64
	for _, c := range itemColumns {
		total += c.width
	}
	return total
}
