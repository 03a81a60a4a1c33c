package ingest

import (
	"strings"

	"github.com/ledongthuc/pdf"
)

// ReadPDF extracts the plain text of every page.
func ReadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	sb.WriteString(header(path))
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		sb.WriteString("\nnewPage:")
		sb.WriteString(text)
	}
	return sb.String(), nil
}
