package service

import (
	"context"

	"github.com/kemsu-schedule/schedule-bot/internal/application/command"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/source"
)

// DocumentSourceAdapter adapts the source package to the command.DocumentSource
// interface: fetcher, archive and extractor behind one value.
type DocumentSourceAdapter struct {
	fetcher   *source.HTTPFetcher
	extractor *source.PDFExtractor
	archive   *source.Archive
}

// NewDocumentSourceAdapter creates the adapter. archive may be nil.
func NewDocumentSourceAdapter(fetcher *source.HTTPFetcher, extractor *source.PDFExtractor, archive *source.Archive) *DocumentSourceAdapter {
	return &DocumentSourceAdapter{
		fetcher:   fetcher,
		extractor: extractor,
		archive:   archive,
	}
}

func (a *DocumentSourceAdapter) Fetch(ctx context.Context) (*command.SourceDocument, error) {
	doc, err := a.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	return &command.SourceDocument{
		Data:        doc.Data,
		Fingerprint: source.Fingerprint(doc.Data),
		SourceURL:   doc.SourceURL,
		FetchedAt:   doc.FetchedAt,
	}, nil
}

func (a *DocumentSourceAdapter) Archive(_ context.Context, doc *command.SourceDocument) error {
	if a.archive == nil {
		return nil
	}
	return a.archive.Write(doc.Data)
}

func (a *DocumentSourceAdapter) Extract(ctx context.Context, doc *command.SourceDocument) (*command.ExtractedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := a.extractor.Extract(doc.Data)
	if err != nil {
		return nil, err
	}

	return &command.ExtractedDocument{
		Text:      out.Text,
		PageCount: out.PageCount,
	}, nil
}
