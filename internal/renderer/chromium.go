package renderer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

const (
	htmlRoute = "/forms/chromium/convert/html"
	urlRoute  = "/forms/chromium/convert/url"

	// A4 in inches.
	a4Width  = "8.27"
	a4Height = "11.7"

	maxErrorBody = 4 << 10
)

// ChromiumConfig configures the HTTP renderer.
type ChromiumConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Username string
	Password string
}

// ChromiumRenderer talks to a Gotenberg-compatible Chromium conversion service.
// Pages are printed on A4 with backgrounds.
type ChromiumRenderer struct {
	baseURL  string
	timeout  time.Duration
	username string
	password string
	client   *http.Client
	logger   *slog.Logger
}

func NewChromiumRenderer(cfg ChromiumConfig, logger *slog.Logger) *ChromiumRenderer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromiumRenderer{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:  timeout,
		username: cfg.Username,
		password: cfg.Password,
		client:   cleanhttp.DefaultPooledClient(),
		logger:   logger,
	}
}

// Render posts the document to the conversion service and returns the PDF.
func (r *ChromiumRenderer) Render(ctx context.Context, req Request) ([]byte, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, contentType, route, err := buildForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+route, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if r.username != "" {
		httpReq.SetBasicAuth(r.username, r.password)
	}

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("renderer responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered document: %w", err)
	}
	if len(pdf) == 0 {
		return nil, ErrEmptyOutput
	}

	r.logger.Debug("Document rendered",
		slog.String("route", route),
		slog.Int("size_bytes", len(pdf)),
		slog.Duration("duration", time.Since(start)),
	)
	return pdf, nil
}

func buildForm(req Request) (*bytes.Buffer, string, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	route := urlRoute
	if req.HTML != "" {
		route = htmlRoute
		part, err := w.CreateFormFile("files", "index.html")
		if err != nil {
			return nil, "", "", err
		}
		if _, err := io.WriteString(part, req.HTML); err != nil {
			return nil, "", "", err
		}
	} else {
		if err := w.WriteField("url", req.URL); err != nil {
			return nil, "", "", err
		}
	}

	fields := map[string]string{
		"paperWidth":      a4Width,
		"paperHeight":     a4Height,
		"printBackground": "true",
	}

	headers := extraHeaders(req.Options)
	if len(headers) > 0 {
		raw, err := json.Marshal(headers)
		if err != nil {
			return nil, "", "", err
		}
		fields["extraHttpHeaders"] = string(raw)
	}

	if req.Options != nil && len(req.Options.Cookies) > 0 {
		raw, err := json.Marshal(chromiumCookies(req.Options.Cookies))
		if err != nil {
			return nil, "", "", err
		}
		fields["cookies"] = string(raw)
	}

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", "", err
	}
	return buf, w.FormDataContentType(), route, nil
}

// extraHeaders merges custom headers with the page basic-auth credentials.
func extraHeaders(opts *domain.RenderOptions) map[string]string {
	if opts == nil {
		return nil
	}
	headers := make(map[string]string, len(opts.HTTPHeaders)+1)
	for k, v := range opts.HTTPHeaders {
		headers[k] = v
	}
	if opts.Auth != nil {
		creds := base64.StdEncoding.EncodeToString([]byte(opts.Auth.Username + ":" + opts.Auth.Password))
		headers["Authorization"] = "Basic " + creds
	}
	return headers
}

type chromiumCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path,omitempty"`
	Secure   *bool  `json:"secure,omitempty"`
	HTTPOnly *bool  `json:"httpOnly,omitempty"`
	SameSite string `json:"sameSite,omitempty"`
}

// chromiumCookies converts cookies to the service format, which is domain based.
// A cookie scoped by URL takes that URL's host and path.
func chromiumCookies(cookies []domain.Cookie) []chromiumCookie {
	out := make([]chromiumCookie, 0, len(cookies))
	for _, c := range cookies {
		cc := chromiumCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if cc.Domain == "" && c.URL != "" {
			if u, err := url.Parse(c.URL); err == nil {
				cc.Domain = u.Hostname()
				if cc.Path == "" && u.Path != "" {
					cc.Path = u.Path
				}
				if cc.Secure == nil && u.Scheme == "https" {
					secure := true
					cc.Secure = &secure
				}
			}
		}
		out = append(out, cc)
	}
	return out
}
