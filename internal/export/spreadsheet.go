package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/petty-cash/internal/pix"
)

const (
	RecordsSheet = "Prestações"
	ItemsSheet   = "Itens"

	brlFormat = `"R$" #,##0.00;-"R$" #,##0.00`
)

var recordsHeader = []interface{}{
	"ID", "Data", "Loja", "Responsável", "CPF/CNPJ", "Departamento", "Chave PIX",
	"Fundo", "Consumido", "Saldo", "Itens", "Criado em",
}

var itemsHeader = []interface{}{
	"Prestação", "Loja", "Item", "Data", "Motivo", "Fornecedor", "Documento", "Valor", "Comprovantes",
}

// Spreadsheet writes an XLSX workbook with one row per report and a second
// sheet with one row per line item.
func Spreadsheet(w io.Writer, records []Snapshot) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", RecordsSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(ItemsSheet); err != nil {
		return fmt.Errorf("creating items sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	numFmt := brlFormat
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("creating money style: %w", err)
	}

	if err := writeRow(f, RecordsSheet, 1, recordsHeader); err != nil {
		return err
	}
	if err := writeRow(f, ItemsSheet, 1, itemsHeader); err != nil {
		return err
	}

	itemRow := 2
	for i, s := range records {
		row := i + 2
		h := s.Header
		values := []interface{}{
			s.ID,
			BRDate(h.ReportDate),
			h.Store,
			h.HolderName,
			pix.Format(h.TaxID),
			h.Department,
			pix.Format(h.PayoutKey),
			h.DisbursedFund.Decimal().InexactFloat64(),
			s.Totals.Consumed.Decimal().InexactFloat64(),
			s.Totals.Balance.Decimal().InexactFloat64(),
			len(s.Items),
			createdAt(s),
		}
		if err := writeRow(f, RecordsSheet, row, values); err != nil {
			return err
		}

		for _, item := range s.Items {
			values := []interface{}{
				s.ID,
				h.Store,
				item.ID,
				BRDate(item.Date),
				item.Reason,
				item.Supplier,
				item.DocumentNumber,
				item.Amount.Decimal().InexactFloat64(),
				len(item.Attachments),
			}
			if err := writeRow(f, ItemsSheet, itemRow, values); err != nil {
				return err
			}
			itemRow++
		}
	}

	styles := []struct {
		sheet    string
		from, to string
		style    int
	}{
		{RecordsSheet, "A1", "L1", bold},
		{ItemsSheet, "A1", "I1", bold},
		{RecordsSheet, "H2", fmt.Sprintf("J%d", max(len(records)+1, 2)), money},
		{ItemsSheet, "H2", fmt.Sprintf("H%d", max(itemRow-1, 2)), money},
	}
	for _, st := range styles {
		if err := f.SetCellStyle(st.sheet, st.from, st.to, st.style); err != nil {
			return fmt.Errorf("styling %s: %w", st.sheet, err)
		}
	}
	if err := f.SetColWidth(RecordsSheet, "A", "A", 38); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(RecordsSheet, "B", "L", 18); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("addressing row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}

func createdAt(s Snapshot) string {
	if s.CreatedAt.IsZero() {
		return ""
	}
	return s.CreatedAt.Format("02/01/2006 15:04")
}
