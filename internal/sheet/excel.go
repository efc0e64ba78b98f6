package sheet

import (
	"bytes"
	"errors"
	"fmt"

	xls "github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// readXLSX reads the first worksheet. Cells typed as numbers take their
// stored value in canonical form; everything else keeps the displayed text.
func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	sh := sheets[0]

	shown, err := f.GetRows(sh)
	if err != nil {
		return nil, err
	}
	raw, err := f.GetRows(sh, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	out := make([][]string, 0, len(shown))
	for r, cols := range shown {
		if isBlank(cols) {
			continue
		}
		rec := make([]string, len(cols))
		for c, v := range cols {
			rec[c] = v
			if _, ok := canonicalNumber(v); !ok || r >= len(raw) || c >= len(raw[r]) {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			typ, err := f.GetCellType(sh, cell)
			if err != nil {
				return nil, err
			}
			if typ != excelize.CellTypeUnset && typ != excelize.CellTypeNumber {
				continue
			}
			if n, ok := canonicalNumber(raw[r][c]); ok {
				rec[c] = n
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// readXLS reads the first sheet of a legacy BIFF workbook. The decoder
// panics on some corrupt inputs, so panics are turned into errors.
func readXLS(data []byte) (records [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("corrupt workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, nil
	}
	sh := wb.GetSheet(0)
	if sh == nil {
		return nil, errors.New("first sheet is unreadable")
	}

	out := make([][]string, 0, int(sh.MaxRow)+1)
	for i := 0; i <= int(sh.MaxRow); i++ {
		row := xlsRow(sh, i)
		if row == nil {
			continue
		}
		rec := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			rec = append(rec, row.Col(c))
		}
		if isBlank(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// xlsRow returns nil for a row the sheet does not store; the decoder's
// own Row dereferences a nil entry in that case.
func xlsRow(sh *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sh.Row(i)
}

func isBlank(cols []string) bool {
	for _, v := range cols {
		if v != "" {
			return false
		}
	}
	return true
}
