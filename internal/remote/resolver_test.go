package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/any-hub/unicdn/internal/downloader"
	"github.com/any-hub/unicdn/internal/naming"
)

func TestMarkerKey(t *testing.T) {
	r := NewResolver(&stubDownloader{}, naming.Stem(naming.DefaultSuffix))
	testCases := []struct {
		input string
		want  string
	}{
		{"/files/a.bin", "/files/a_version.txt"},
		{"files/a.bin", "files/a_version.txt"},
		{"a.bin", "a_version.txt"},
		{"/a.bin/a.bin", "/a.bin/a_version.txt"},
	}
	for _, tc := range testCases {
		got, err := r.MarkerKey(context.Background(), tc.input)
		if err != nil {
			t.Fatalf("marker key for %s failed: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, got)
		}
	}

	if _, err := r.MarkerKey(context.Background(), "/"); err == nil {
		t.Fatalf("root path should be rejected")
	}
}

func TestGetRemoteVersion(t *testing.T) {
	d := &stubDownloader{objects: map[string]string{"/files/largefile_version.txt": "42"}}
	r := NewResolver(d, naming.Suffix(naming.DefaultSuffix))

	version, err := r.GetRemoteVersion(context.Background(), "/files/largefile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != "42" {
		t.Fatalf("expected 42, got %q", version)
	}
}

func TestGetRemoteVersionAbsentMarker(t *testing.T) {
	r := NewResolver(&stubDownloader{}, naming.Suffix(naming.DefaultSuffix))
	version, err := r.GetRemoteVersion(context.Background(), "/files/missing")
	if err != nil {
		t.Fatalf("confirmed absence should not error: %v", err)
	}
	if version != "" {
		t.Fatalf("expected empty version, got %q", version)
	}
}

func TestGetRemoteVersionPropagatesFailures(t *testing.T) {
	boom := errors.New("connection refused")

	testCases := []struct {
		name   string
		d      *stubDownloader
		op     string
		target error
	}{
		{"url", &stubDownloader{urlErr: downloader.ErrURLEmpty}, "get_url", downloader.ErrURLEmpty},
		{"download", &stubDownloader{downloadErr: boom}, "download", boom},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(tc.d, naming.Suffix(naming.DefaultSuffix))
			_, err := r.GetRemoteVersion(context.Background(), "/files/a")
			var remoteErr *Error
			if !errors.As(err, &remoteErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if remoteErr.Op != tc.op {
				t.Fatalf("expected op %s, got %s", tc.op, remoteErr.Op)
			}
			if !errors.Is(err, tc.target) {
				t.Fatalf("error should wrap %v", tc.target)
			}
		})
	}
}

type stubDownloader struct {
	objects     map[string]string
	urlErr      error
	downloadErr error
}

func (s *stubDownloader) Provider() downloader.Provider { return "stub" }

func (s *stubDownloader) Init(context.Context) error { return nil }

func (s *stubDownloader) GetURL(_ context.Context, key string) (string, error) {
	if s.urlErr != nil {
		return "", s.urlErr
	}
	return "stub://" + key, nil
}

func (s *stubDownloader) Download(_ context.Context, url string) ([]byte, error) {
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	key := url[len("stub://"):]
	if value, ok := s.objects[key]; ok {
		return []byte(value), nil
	}
	return nil, fmt.Errorf("%s: %w", key, downloader.ErrNotFound)
}
