package s3_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auctionhouse/adapters/s3"
)

type fakePutter struct {
	inputs []*awsS3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *awsS3.PutObjectInput, _ ...func(*awsS3.Options)) (*awsS3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &awsS3.PutObjectOutput{}, nil
}

func TestNewS3Operator(t *testing.T) {
	tests := []struct {
		name      string
		client    s3.ObjectPutter
		bucket    string
		publicURL string
		wantErr   bool
	}{
		{name: "valid", client: &fakePutter{}, bucket: "archive", publicURL: "https://cdn.example.com"},
		{name: "without public url", client: &fakePutter{}, bucket: "archive"},
		{name: "nil client", bucket: "archive", wantErr: true},
		{name: "empty bucket", client: &fakePutter{}, wantErr: true},
		{name: "invalid public url", client: &fakePutter{}, bucket: "archive", publicURL: "://bad", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			operator, err := s3.NewS3Operator(tt.client, tt.bucket, tt.publicURL)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, operator)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, operator)
		})
	}
}

func TestS3Operator_UploadFileToS3(t *testing.T) {
	putter := &fakePutter{}
	operator, err := s3.NewS3Operator(putter, "archive", "https://cdn.example.com/files", s3.WithKeyPrefix("prod"))
	require.NoError(t, err)

	url, err := operator.UploadFileToS3(context.Background(), "settlements/a.json", "application/json", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/files/prod/settlements/a.json", url)

	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "archive", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, "prod/settlements/a.json", aws.ToString(putter.inputs[0].Key))
	assert.Equal(t, "application/json", aws.ToString(putter.inputs[0].ContentType))
	assert.Equal(t, []byte(`{}`), putter.bodies[0])
}

func TestS3Operator_UploadJSON(t *testing.T) {
	putter := &fakePutter{}
	operator, err := s3.NewS3Operator(putter, "archive", "")
	require.NoError(t, err)

	url, err := operator.UploadJSON(context.Background(), "settlements/a.json", map[string]int{"bidCount": 3})
	require.NoError(t, err)
	assert.Equal(t, "s3://archive/settlements/a.json", url)
	assert.JSONEq(t, `{"bidCount": 3}`, string(putter.bodies[0]))

	_, err = operator.UploadJSON(context.Background(), "bad.json", make(chan int))
	assert.Error(t, err)

	boom := errors.New("boom")
	putter.err = boom
	_, err = operator.UploadJSON(context.Background(), "settlements/b.json", map[string]int{})
	assert.ErrorIs(t, err, boom)
}
