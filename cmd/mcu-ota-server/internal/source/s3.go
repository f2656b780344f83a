package source

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"go.uber.org/zap"
)

// objectKey matches "<code as hex>-<major>.<minor>.<patch>.bin", e.g. "1987-0.2.0.bin".
var objectKey = regexp.MustCompile(`^(?:.*/)?([0-9a-fA-F]{1,4})-(\d+\.\d+\.\d+)\.bin$`)

type S3Config struct {
	Log    *zap.SugaredLogger
	Url    string
	Key    string
	Secret string
	Bucket string
}

// S3 reads firmware images from a bucket of an S3 compatible object store.
type S3 struct {
	log    *zap.SugaredLogger
	client s3iface.S3API
	bucket string
}

func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 firmware bucket must be given")
	}
	sess, err := newSession(cfg.Url, cfg.Key, cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("cannot create s3 session: %w", err)
	}
	return newS3(cfg.Log, s3.New(sess), cfg.Bucket), nil
}

func newS3(log *zap.SugaredLogger, api s3iface.S3API, bucket string) *S3 {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &S3{
		log:    log.Named("s3-source"),
		client: api,
		bucket: bucket,
	}
}

func newSession(url, key, secret string) (client.ConfigProvider, error) {
	dummyRegion := "dummy" // we don't use AWS S3, we don't need a proper region
	hostnameImmutable := true
	return session.NewSession(&aws.Config{
		Region:           &dummyRegion,
		Endpoint:         &url,
		Credentials:      credentials.NewStaticCredentials(key, secret, ""),
		S3ForcePathStyle: &hostnameImmutable,
		Retryer: client.DefaultRetryer{
			NumMaxRetries: 3,
			MinRetryDelay: 1 * time.Second,
		},
	})
}

// Firmwares downloads every firmware object of the bucket.
func (s *S3) Firmwares(ctx context.Context) ([]*ota.Artifact, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, o := range page.Contents {
			keys = append(keys, aws.StringValue(o.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("cannot list bucket %q: %w", s.bucket, err)
	}

	var artifacts []*ota.Artifact
	for _, key := range keys {
		code, version, err := ParseObjectKey(key)
		if err != nil {
			s.log.Debugw("skipping object", "key", key, "reason", err)
			continue
		}
		data, err := s.download(ctx, key)
		if err != nil {
			return nil, err
		}
		a, err := ota.NewArtifact(code, version, "s3://"+s.bucket+"/"+key, data)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func (s *S3) download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot get object %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read object %q: %w", key, err)
	}
	return data, nil
}

// ParseObjectKey extracts code and version from a firmware object key.
func ParseObjectKey(key string) (uint16, ota.Version, error) {
	m := objectKey.FindStringSubmatch(key)
	if m == nil {
		return 0, ota.Version{}, ota.Invalid("object key %q does not look like <code>-<major>.<minor>.<patch>.bin", key)
	}
	code, err := strconv.ParseUint(m[1], 16, 16)
	if err != nil {
		return 0, ota.Version{}, ota.Invalid("object key %q: %v", key, err)
	}
	version, err := ota.ParseVersion(m[2])
	if err != nil {
		return 0, ota.Version{}, err
	}
	return uint16(code), version, nil
}
