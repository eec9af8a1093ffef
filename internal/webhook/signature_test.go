package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	want := "v1=" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign("s3cret", body))
	assert.NotEqual(t, Sign("s3cret", body), Sign("other", body))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"job.succeeded"}`)
	valid := Sign("s3cret", body)

	tests := []struct {
		name    string
		secret  string
		body    []byte
		header  string
		wantErr error
	}{
		{name: "valid", secret: "s3cret", body: body, header: valid},
		{name: "other secret", secret: "wrong", body: body, header: valid, wantErr: ErrInvalidSignature},
		{name: "other body", secret: "s3cret", body: []byte(`{"id":"evt_2"}`), header: valid, wantErr: ErrInvalidSignature},
		{name: "missing header", secret: "s3cret", body: body, header: "", wantErr: ErrSignatureMissing},
		{name: "missing version", secret: "s3cret", body: body, header: valid[len(SignatureVersion):], wantErr: ErrInvalidSignature},
		{name: "not hex", secret: "s3cret", body: body, header: "v1=zz", wantErr: ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.secret, tt.body, tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
