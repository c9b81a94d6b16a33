package content

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	puts    int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	s := newS3StoreWithClient(fake, "bucket", "blobs/")
	ctx := context.Background()

	n, err := s.Put(ctx, "AbCd2345", strings.NewReader("payload"), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Contains(t, fake.objects, "blobs/AbCd2345")

	rc, err := s.Open(ctx, "AbCd2345")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "payload", string(b))

	fake.objects["elsewhere/x"] = []byte("ignored")
	fake.objects["blobs/Zz223344"] = []byte("y")
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"AbCd2345", "Zz223344"}, keys)

	require.NoError(t, s.Delete(ctx, "AbCd2345"))
	assert.ErrorIs(t, s.Delete(ctx, "AbCd2345"), common.ErrorNotFound)

	_, err = s.Open(ctx, "AbCd2345")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestS3Store_OverLimitNeverUploads(t *testing.T) {
	fake := newFakeS3()
	s := newS3StoreWithClient(fake, "bucket", "")

	_, err := s.Put(context.Background(), "AbCd2345", strings.NewReader("123456"), 5)
	assert.ErrorIs(t, err, common.ErrFileTooLarge)
	assert.Equal(t, 0, fake.puts)
}

func TestS3Store_PutError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("503")
	s := newS3StoreWithClient(fake, "bucket", "")

	_, err := s.Put(context.Background(), "AbCd2345", strings.NewReader("1"), 5)
	require.Error(t, err)
	ok, err := s.Exists(context.Background(), "AbCd2345")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewS3Store_UsesSeams(t *testing.T) {
	fake := newFakeS3()

	origLoad, origClient := loadDefaultAWSConfig, newS3ClientFromConfig
	defer func() { loadDefaultAWSConfig, newS3ClientFromConfig = origLoad, origClient }()

	var gotEndpoint string
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		o := &s3.Options{}
		for _, fn := range optFns {
			fn(o)
		}
		gotEndpoint = aws.ToString(o.BaseEndpoint)
		assert.True(t, o.UsePathStyle)
		assert.Equal(t, "eu-west-1", cfg.Region)
		return fake
	}

	s, err := NewS3Store(context.Background(), S3Config{
		Bucket: "b", Region: "eu-west-1", Endpoint: "http://minio:9000", AccessKey: "a", SecretKey: "s",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000", gotEndpoint)
	assert.Equal(t, "b", s.bucket)
}
