package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter 是 S3Operator 用到的 S3 API 子集
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ClientConfig 是連線到 S3 相容儲存服務所需的設定
type ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient 以靜態金鑰建立 S3 客戶端，Endpoint 為空時使用 AWS 預設端點
func NewClient(ctx context.Context, config ClientConfig) (*s3.Client, error) {
	const op = "NewClient"
	region := config.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsCfg.LoadOptions) error{
		awsCfg.WithRegion(region),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")),
	}
	if config.Endpoint != "" {
		opts = append(opts, awsCfg.WithBaseEndpoint(config.Endpoint))
	}
	cfg, err := awsCfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		// R2、MinIO 等相容服務需要 path-style
		o.UsePathStyle = config.Endpoint != ""
	}), nil
}

type S3Operator struct {
	// Client 是 S3 客戶端。
	Client ObjectPutter
	// Bucket 是 S3 存儲桶的名稱。
	Bucket string
	// PublicEndpoint 是 S3 存儲桶的公開 Endpoint，可以為空。
	PublicEndpoint *url.URL
	// Prefix 會加在所有物件 key 的前面。
	Prefix string
}

type OperatorOption func(*S3Operator)

// WithKeyPrefix 設置物件 key 的前綴
func WithKeyPrefix(prefix string) OperatorOption {
	return func(s *S3Operator) {
		s.Prefix = prefix
	}
}

func NewS3Operator(client ObjectPutter, bucket, publicBaseURL string, opts ...OperatorOption) (*S3Operator, error) {
	const op = "NewS3Operator"
	if client == nil {
		return nil, errors.New("s3 client cannot be nil")
	}
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	s := &S3Operator{Client: client, Bucket: bucket}
	if publicBaseURL != "" {
		publicEndpoint, err := url.Parse(publicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
		}
		s.PublicEndpoint = publicEndpoint
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UploadFileToS3 上傳檔案並回傳公開網址，沒有設定公開 Endpoint 時回傳 s3:// 位置
func (s *S3Operator) UploadFileToS3(ctx context.Context, key, contentType string, fileContent []byte) (string, error) {
	const op = "UploadFileToS3"
	key = path.Join(s.Prefix, key)
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(fileContent),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, key=%s, err=%w", op, key, err)
	}
	if s.PublicEndpoint == nil {
		return "s3://" + s.Bucket + "/" + key, nil
	}
	uri := *s.PublicEndpoint
	uri.Path = path.Join("/", uri.Path, key)
	return uri.String(), nil
}

// UploadJSON 將 v 序列化成 JSON 後上傳
func (s *S3Operator) UploadJSON(ctx context.Context, key string, v any) (string, error) {
	const op = "UploadJSON"
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to marshal document, key=%s, err=%w", op, key, err)
	}
	return s.UploadFileToS3(ctx, key, "application/json", body)
}
