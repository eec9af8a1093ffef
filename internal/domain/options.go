package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// BasicAuth holds HTTP credentials the renderer presents to the target site.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Cookie is set in the browser context before navigation.
// Either URL or Domain must be present.
type Cookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	URL      string   `json:"url,omitempty"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
	Expires  *float64 `json:"expires,omitempty"`
	HTTPOnly *bool    `json:"httpOnly,omitempty"`
	Secure   *bool    `json:"secure,omitempty"`
	SameSite string   `json:"sameSite,omitempty"`
}

// RenderOptions is the optional per-job render configuration.
type RenderOptions struct {
	Auth        *BasicAuth        `json:"auth,omitempty"`
	HTTPHeaders map[string]string `json:"httpHeaders,omitempty"`
	Cookies     []Cookie          `json:"cookies,omitempty"`
}

// DecodeRenderOptions parses options strictly: unknown fields are rejected.
func DecodeRenderOptions(raw []byte) (*RenderOptions, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var opts RenderOptions
	if err := dec.Decode(&opts); err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid options: %v", err))
	}
	return &opts, nil
}

// Validate enforces the option constraints shared by admission and direct rendering.
func (o *RenderOptions) Validate() error {
	if o == nil {
		return nil
	}

	if o.Auth != nil && o.Auth.Username == "" {
		return NewValidationError("options.auth.username is required")
	}

	seen := make(map[string]struct{}, len(o.HTTPHeaders))
	for name := range o.HTTPHeaders {
		if name == "" {
			return NewValidationError("options.httpHeaders contains an empty header name")
		}
		canonical := http.CanonicalHeaderKey(name)
		if _, dup := seen[canonical]; dup {
			return NewValidationError(fmt.Sprintf("options.httpHeaders contains duplicate header %q", canonical))
		}
		seen[canonical] = struct{}{}
	}

	for i, c := range o.Cookies {
		if c.Name == "" {
			return NewValidationError(fmt.Sprintf("options.cookies[%d].name is required", i))
		}
		if c.URL == "" && c.Domain == "" {
			return NewValidationError(fmt.Sprintf("options.cookies[%d] must include either url or domain", i))
		}
		if c.URL != "" {
			if u, err := url.Parse(c.URL); err != nil || u.Host == "" {
				return NewValidationError(fmt.Sprintf("options.cookies[%d].url is not a valid URL", i))
			}
		}
		switch c.SameSite {
		case "", "Strict", "Lax", "None":
		default:
			return NewValidationError(fmt.Sprintf("options.cookies[%d].sameSite must be Strict, Lax or None", i))
		}
	}

	return nil
}

// Value stores options as jsonb.
func (o *RenderOptions) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

// Scan loads options from a jsonb column.
func (o *RenderOptions) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	default:
		return errors.New("unsupported type for render options")
	}
}
