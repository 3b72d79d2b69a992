package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/marmos91/fileaccess/pkg/share"
	sharetest "github.com/marmos91/fileaccess/pkg/share/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket implementing API.
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string]fakeObject
	pageSize int32
	lists    int
}

type fakeObject struct {
	data    []byte
	modTime time.Time
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: make(map[string]fakeObject), pageSize: 1000}
}

func (f *fakeS3) checkBucket(b *string) error {
	if aws.ToString(b) != f.bucket {
		return &types.NoSuchBucket{}
	}
	return nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != f.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modTime),
	}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(append([]byte(nil), obj.data...))),
		ContentLength: aws.Int64(int64(len(obj.data))),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, modTime: time.Now().UTC()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)
	token := aws.ToString(in.ContinuationToken)
	limit := f.pageSize
	if in.MaxKeys != nil && *in.MaxKeys < limit {
		limit = *in.MaxKeys
	}

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	var count int32
	last := ""
	for i := 0; i < len(keys); i++ {
		if count == limit {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(last)
			break
		}
		k := keys[i]
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if idx := strings.Index(rest, delim); idx >= 0 {
				cp := prefix + rest[:idx+len(delim)]
				out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				for i+1 < len(keys) && strings.HasPrefix(keys[i+1], cp) {
					i++
				}
				last = keys[i]
				count++
				continue
			}
		}
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modTime),
		})
		last = k
		count++
	}
	if out.IsTruncated == nil {
		out.IsTruncated = aws.Bool(false)
	}
	out.KeyCount = aws.Int32(count)
	return out, nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newTestShare(t *testing.T, prefix string) (*Share, *fakeS3) {
	t.Helper()
	api := newFakeS3("test-bucket")
	s, err := New(context.Background(), Config{Client: api, Bucket: "test-bucket", KeyPrefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, api
}

func TestS3Share(t *testing.T) {
	suite := &sharetest.ShareTestSuite{
		NewShare: func(t *testing.T) share.Share {
			s, _ := newTestShare(t, "exports/data")
			return s
		},
	}
	suite.Run(t)
}

func TestS3Share_NoPrefix(t *testing.T) {
	suite := &sharetest.ShareTestSuite{
		SkipSpeedTest: true,
		NewShare: func(t *testing.T) share.Share {
			s, _ := newTestShare(t, "")
			return s
		},
	}
	suite.Run(t)
}

func TestIdentity(t *testing.T) {
	s, _ := newTestShare(t, "/exports/data/")
	assert.Equal(t, DefaultHost, s.HostName())
	assert.Equal(t, "s3://test-bucket/exports/data/", s.URLBase())
	assert.Equal(t, "test-bucket", s.ShareName())
	assert.False(t, s.IsLocal())

	api := newFakeS3("b")
	s2, err := New(context.Background(), Config{Client: api, Bucket: "b", Endpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, "localhost", s2.HostName())
	assert.Equal(t, "s3://b/", s2.URLBase())
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, Config{Bucket: "b"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Client: newFakeS3("b")})
	assert.Error(t, err)

	_, err = New(ctx, Config{Client: newFakeS3("b"), Bucket: "other"})
	sharetest.AssertErrorIs(t, share.ErrNotFound, err)
}

func TestKeyLayout(t *testing.T) {
	ctx := context.Background()
	s, api := newTestShare(t, "pre")

	require.NoError(t, s.CreateDirectory(ctx, "/a"))
	require.NoError(t, s.WriteAllDataToFile(ctx, "/a/b.txt", []byte("hi")))
	assert.Equal(t, []string{"pre/a/", "pre/a/b.txt"}, api.keys())
}

func TestImplicitDirectories(t *testing.T) {
	ctx := context.Background()
	s, api := newTestShare(t, "")
	api.objects["x/y/z.txt"] = fakeObject{data: []byte("z"), modTime: time.Now()}

	names, err := s.ListDirectoryContentNames(ctx, "/", share.AllKinds)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names)

	dirs, err := s.ListAllDirectoriesRecursively(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/x", "/x/y"}, dirs)

	err = s.DeleteEmptyDirectory(ctx, "/x/y")
	sharetest.AssertErrorIs(t, share.ErrDirectoryNotEmpty, err)

	err = s.CreateDirectory(ctx, "/x")
	sharetest.AssertErrorIs(t, share.ErrAlreadyExists, err)

	data, err := s.ReadAllDataFromFile(ctx, "/x/y/z.txt")
	require.NoError(t, err)
	assert.Equal(t, "z", string(data))
}

func TestListing_Paginates(t *testing.T) {
	ctx := context.Background()
	s, api := newTestShare(t, "")
	api.pageSize = 2

	require.NoError(t, s.CreateDirectory(ctx, "/d"))
	for _, n := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, s.WriteAllDataToFile(ctx, "/d/f"+n, []byte(n)))
	}
	require.NoError(t, s.CreateDirectory(ctx, "/d/sub"))

	api.lists = 0
	entries, err := s.ListDirectoryContent(ctx, "/d", share.AllKinds)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
	assert.Greater(t, api.lists, 2)
}

func TestWrite_OntoDirectory(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestShare(t, "")
	require.NoError(t, s.CreateDirectory(ctx, "/d"))

	err := s.WriteAllDataToFile(ctx, "/d", []byte("x"))
	sharetest.AssertErrorIs(t, share.ErrRemoteIO, err)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))

	resp := &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusNotFound}},
			Err:      errors.New("not found"),
		},
	}
	assert.True(t, isNotFound(resp))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestNewClient_RequiresRegion(t *testing.T) {
	_, err := NewClient(context.Background(), ClientConfig{})
	assert.Error(t, err)

	c, err := NewClient(context.Background(), ClientConfig{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
