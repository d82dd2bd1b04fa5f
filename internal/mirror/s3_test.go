package mirror

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3API
	headErr error
	puts    []*s3.PutObjectInput
	bodies  []string
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func withFakeS3(t *testing.T, f *fakeS3) {
	t.Helper()
	orig := newS3Client
	newS3Client = func(context.Context, S3Config) (s3API, error) { return f, nil }
	t.Cleanup(func() { newS3Client = orig })
}

func TestS3Backend_PutsObjectUnderBasePath(t *testing.T) {
	f := &fakeS3{}
	withFakeS3(t, f)

	backend, err := NewS3Backend(S3Config{Bucket: "photos"})
	require.NoError(t, err)
	m := New(backend, Options{BasePath: "/fotoapp"}, nil)

	require.NoError(t, m.Sync(context.Background(), 3, "Fest", localFile(t, "img"), "a.png"))
	require.Len(t, f.puts, 1)
	assert.Equal(t, "photos", aws.ToString(f.puts[0].Bucket))
	assert.Equal(t, "fotoapp/Fest_3/a.png", aws.ToString(f.puts[0].Key))
	assert.Equal(t, int64(3), aws.ToInt64(f.puts[0].ContentLength))
	assert.Equal(t, "img", f.bodies[0])
}

func TestS3Backend_MissingBucketFailsMount(t *testing.T) {
	withFakeS3(t, &fakeS3{headErr: errors.New("NotFound")})

	backend, err := NewS3Backend(S3Config{Bucket: "photos"})
	require.NoError(t, err)
	m := New(backend, Options{}, nil)

	err = m.Sync(context.Background(), 1, "E", localFile(t, "x"), "a.png")
	var merr *MirrorError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "mount", merr.Op)
}

func TestNewS3Backend_RequiresBucket(t *testing.T) {
	_, err := NewS3Backend(S3Config{})
	assert.Error(t, err)
}
