package source

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
)

var pdfMagic = []byte("%PDF-")

// Layout tolerances, as fractions of the font size.
const (
	baselineTolerance   = 0.5
	columnGap           = 1.0
	wordGap             = 0.2
	estimatedGlyphWidth = 0.5
)

func init() {
	// Only core fonts are needed for validation; no user config dir.
	api.DisableConfigDir()
}

// Extracted is the plain text of a document.
type Extracted struct {
	// Text holds one line per text run: glyphs on one baseline are joined
	// unless a column gap separates them. Pages follow each other.
	Text string

	// PageCount is 0 for plain-text sources.
	PageCount int
}

// PDFExtractor turns a PDF into flat text. Payloads that are not PDF but valid
// UTF-8 are passed through as text, which lets the bot run against a text export.
type PDFExtractor struct {
	logger *slog.Logger
}

// NewPDFExtractor creates a new extractor.
func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger}
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// Extract returns the text of data.
func (e *PDFExtractor) Extract(data []byte) (*Extracted, error) {
	if IsPDF(data) {
		return e.extractPDF(data)
	}
	if len(data) == 0 || !utf8.Valid(data) {
		return nil, invalidDocument(fmt.Errorf("neither PDF nor UTF-8 text (%d bytes)", len(data)))
	}
	return &Extracted{Text: strings.ReplaceAll(string(data), "\r\n", "\n")}, nil
}

func (e *PDFExtractor) extractPDF(data []byte) (out *Extracted, err error) {
	// The text reader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = invalidDocument(fmt.Errorf("pdf reader panic: %v", r))
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, invalidDocument(fmt.Errorf("validate pdf: %w", err))
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, invalidDocument(fmt.Errorf("open pdf: %w", err))
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, line := range pageLines(page.Content().Text) {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	e.logger.Debug("pdf extracted", "pages", pageCount, "chars", sb.Len())

	return &Extracted{Text: sb.String(), PageCount: pageCount}, nil
}

// pageLines lays glyphs out in content-stream order. A line ends when the
// baseline moves or when the next glyph starts a column away from where the
// previous one ended; a smaller gap becomes a single space.
func pageLines(texts []pdf.Text) []string {
	var (
		lines []string
		cur   strings.Builder
		prev  pdf.Text
		end   float64
		seen  bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			lines = append(lines, s)
		}
		cur.Reset()
	}

	for _, t := range texts {
		if t.S == "" || strings.ContainsAny(t.S, "\r\n\x00") {
			continue
		}
		advance := t.W
		if advance <= 0 {
			advance = t.FontSize * estimatedGlyphWidth
		}
		// Fonts without widths leave every glyph of a run at the run origin.
		sameOrigin := seen && t.W <= 0 && t.X == prev.X && t.Y == prev.Y

		if seen && !sameOrigin {
			size := math.Max(math.Max(prev.FontSize, t.FontSize), 1)
			gap := t.X - end
			switch {
			case math.Abs(t.Y-prev.Y) > baselineTolerance*size:
				flush()
			case gap > columnGap*size || gap < -columnGap*size:
				flush()
			case gap > wordGap*size && !strings.HasSuffix(cur.String(), " "):
				cur.WriteByte(' ')
			}
		}

		cur.WriteString(t.S)
		if sameOrigin {
			end += advance
		} else {
			end = t.X + advance
		}
		prev, seen = t, true
	}
	flush()

	return lines
}

func invalidDocument(err error) error {
	return shared.WrapError("document", "Extract", shared.ErrInvalidFormat, "document could not be read", err)
}
