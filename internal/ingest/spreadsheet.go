package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ReadXLSX renders every sheet of an Office Open XML workbook.
func ReadXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	sb.WriteString(header(path))
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", err
		}
		table, err := sheetJSON(rows)
		if err != nil {
			return "", err
		}
		sb.WriteString("\nSheetName:" + sheet)
		sb.Write(table)
	}
	return sb.String(), nil
}

// ReadXLS renders every sheet of a legacy BIFF workbook.
func ReadXLS(path string) (string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(header(path))
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		table, err := sheetJSON(rows)
		if err != nil {
			return "", err
		}
		sb.WriteString("\nSheetName:" + sheet.Name)
		sb.Write(table)
	}
	return sb.String(), nil
}

// sheetJSON encodes a sheet column-wise: the first row names the columns and
// each column maps the data row index to its value,
//
//	{"name":{"0":"ada","1":"bob"},"age":{"0":36,"1":41}}
//
// Column order follows the sheet. Numeric cells are emitted as numbers,
// empty cells as null.
func sheetJSON(rows [][]string) ([]byte, error) {
	if len(rows) == 0 {
		return []byte("{}"), nil
	}
	headers := rows[0]
	data := rows[1:]

	var buf bytes.Buffer
	buf.WriteByte('{')
	for c, name := range headers {
		if c > 0 {
			buf.WriteByte(',')
		}
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(c)
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(":{")
		for r, row := range data {
			if r > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(strconv.Itoa(r)))
			buf.WriteByte(':')
			var cell string
			if c < len(row) {
				cell = row[c]
			}
			val, err := cellJSON(cell)
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func cellJSON(cell string) ([]byte, error) {
	if cell == "" {
		return []byte("null"), nil
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return json.Marshal(f)
	}
	return json.Marshal(cell)
}
