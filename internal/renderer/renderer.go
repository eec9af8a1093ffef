// Package renderer turns HTML or a URL into PDF bytes by calling a headless Chromium service.
package renderer

import (
	"context"
	"errors"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

var (
	ErrEmptyRequest = errors.New("render request needs html or url")
	ErrEmptyOutput  = errors.New("renderer returned an empty document")
)

// Request is one render. Exactly one of HTML or URL is set.
type Request struct {
	HTML    string
	URL     string
	Options *domain.RenderOptions
}

func (r Request) validate() error {
	if (r.HTML == "") == (r.URL == "") {
		return ErrEmptyRequest
	}
	return nil
}

// Renderer produces a PDF for a request.
type Renderer interface {
	Render(ctx context.Context, req Request) ([]byte, error)
}
