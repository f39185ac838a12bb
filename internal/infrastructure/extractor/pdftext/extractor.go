// Package pdftext derives visual text from PDF exhibit bodies. Scanned or
// image-only PDFs yield no text; the caller decides whether that warrants
// a processing alert based on exhibit materiality.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

// Fewer words than this and the extraction is graded poor: boilerplate
// cover pages parse fine but carry nothing extractable.
const minGoodWordCount = 50

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, exhibit *domain.Exhibit) (string, domain.ExtractionQuality, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.QualityFailed, err
	}

	raw := []byte(exhibit.RawContent)
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.QualityFailed, fmt.Errorf("open pdf %s: %w", exhibit.Filename, err)
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return "", domain.QualityFailed, fmt.Errorf("no text extracted from %s, may be a scanned pdf", exhibit.Filename)
	}

	full := strings.Join(parts, "\n\n")
	if len(strings.Fields(full)) < minGoodWordCount {
		return full, domain.QualityPoor, nil
	}
	return full, domain.QualityGood, nil
}
