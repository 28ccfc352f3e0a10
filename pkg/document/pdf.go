package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrExtraction = errors.New("document extraction failed")

// PDFDocument 提取结果
type PDFDocument struct {
	Text      string
	PageCount int
}

// ExtractPDF 按页提取文本，空白页跳过
func ExtractPDF(data []byte) (doc *PDFDocument, err error) {
	// 损坏的文件可能让解析库 panic
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: malformed pdf: %v", ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	total := reader.NumPage()
	parts := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrExtraction, i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", i, text))
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no extractable text", ErrExtraction)
	}

	return &PDFDocument{
		Text:      strings.Join(parts, "\n\n"),
		PageCount: total,
	}, nil
}

// Extractor 默认的文档提取实现
type Extractor struct{}

func (Extractor) ExtractPDF(data []byte) (*PDFDocument, error) {
	return ExtractPDF(data)
}
