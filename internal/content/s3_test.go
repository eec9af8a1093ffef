package content

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

type MockPresigner struct {
	mock.Mock
}

func (m *MockPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	args := m.Called(ctx, params, opts.Expires)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*v4.PresignedHTTPRequest), args.Error(1)
}

func TestS3Store_Put(t *testing.T) {
	client := &MockS3Client{}
	store := NewS3StoreWithClient(client, &MockPresigner{}, "bucket")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "bucket" &&
			aws.ToString(in.Key) == "inputs/t/j.html" &&
			aws.ToString(in.ContentType) == ContentTypeHTML &&
			aws.ToInt64(in.ContentLength) == 5
	})).Return(&s3.PutObjectOutput{}, nil)

	require.NoError(t, store.Put(context.Background(), "inputs/t/j.html", []byte("<h1/>"), ContentTypeHTML))
	client.AssertExpectations(t)
}

func TestS3Store_Get(t *testing.T) {
	tests := []struct {
		name    string
		out     *s3.GetObjectOutput
		err     error
		want    string
		wantErr error
	}{
		{
			name: "found",
			out:  &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("<p>hi</p>"))},
			want: "<p>hi</p>",
		},
		{
			name:    "missing key",
			err:     &types.NoSuchKey{},
			wantErr: domain.ErrContentNotFound,
		},
		{
			name:    "access denied",
			err:     &smithy.GenericAPIError{Code: "AccessDenied"},
			wantErr: ErrAccessDenied,
		},
		{
			name:    "throttled",
			err:     &smithy.GenericAPIError{Code: "SlowDown"},
			wantErr: ErrServiceUnavailable,
		},
		{
			name:    "deadline",
			err:     context.DeadlineExceeded,
			wantErr: ErrOperationTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockS3Client{}
			store := NewS3StoreWithClient(client, &MockPresigner{}, "bucket")

			if tt.out != nil {
				client.On("GetObject", mock.Anything, mock.Anything).Return(tt.out, nil)
			} else {
				client.On("GetObject", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			got, err := store.Get(context.Background(), "inputs/t/j.html")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestS3Store_PresignGet(t *testing.T) {
	presigner := &MockPresigner{}
	store := NewS3StoreWithClient(&MockS3Client{}, presigner, "bucket")

	presigner.On("PresignGetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "outputs/t/j.pdf"
	}), 30*time.Minute).Return(&v4.PresignedHTTPRequest{URL: "https://bucket.s3/outputs/t/j.pdf?X-Amz-Signature=abc"}, nil)

	url, err := store.PresignGet(context.Background(), "outputs/t/j.pdf", 30*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "X-Amz-Signature")

	presigner.On("PresignGetObject", mock.Anything, mock.Anything, time.Minute).Return(nil, errors.New("no credentials"))
	_, err = store.PresignGet(context.Background(), "outputs/t/other.pdf", time.Minute)
	assert.ErrorContains(t, err, "s3 presign failed")
}

func TestNewS3Store_InvalidConfig(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Bucket: "b"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
