package dataset

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarEntry struct {
	name string
	body string
	dir  bool
	link bool
}

func buildTarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		switch {
		case e.dir:
			hdr.Typeflag, hdr.Mode, hdr.Size = tar.TypeDir, 0o755, 0
		case e.link:
			hdr.Typeflag, hdr.Linkname, hdr.Size = tar.TypeSymlink, "/etc/passwd", 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

type fakeStore struct {
	objects map[string][]byte
	listErr error
}

func (s *fakeStore) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fakeStore) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	data, ok := s.objects[key]
	if !ok {
		return 0, fmt.Errorf("no such key %s", key)
	}
	n, err := w.WriteAt(data, 0)
	return int64(n), err
}

func TestExtractTarGz(t *testing.T) {
	archive := buildTarGz(t, []tarEntry{
		{name: "car_ims/", dir: true},
		{name: "car_ims/train/bmw/000001.jpg", body: "jpeg-1"},
		{name: "car_ims/test/audi/000002.jpg", body: "jpeg-2"},
		{name: "car_ims/link", link: true},
	})

	dest := t.TempDir()
	n, err := ExtractTarGz(bytes.NewReader(archive), dest)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dest, "car_ims", "train", "bmw", "000001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-1", string(data))
	assert.NoFileExists(t, filepath.Join(dest, "car_ims", "link"))
}

func TestExtractTarGzRejectsEscapes(t *testing.T) {
	for _, name := range []string{"../evil.txt", "car_ims/../../evil.txt", "/tmp/evil.txt"} {
		t.Run(name, func(t *testing.T) {
			archive := buildTarGz(t, []tarEntry{{name: name, body: "x"}})
			_, err := ExtractTarGz(bytes.NewReader(archive), t.TempDir())
			assert.ErrorIs(t, err, ErrUnsafePath)
		})
	}
}

func TestExtractTarGzNotGzip(t *testing.T) {
	_, err := ExtractTarGz(bytes.NewReader([]byte("plain text")), t.TempDir())
	assert.Error(t, err)
}

func newTestFetcher(t *testing.T, store ObjectStore) (*Fetcher, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	return NewFetcher(store, cfg, log), hook
}

func TestFetch(t *testing.T) {
	cfg := DefaultConfig()
	store := &fakeStore{objects: map[string][]byte{
		cfg.ArchiveKey: buildTarGz(t, []tarEntry{{name: "car_ims/train/bmw/1.jpg", body: "img"}}),
		cfg.LabelsKey:  []byte("img_name,class\n1.jpg,bmw\n"),
	}}

	f, hook := newTestFetcher(t, store)
	require.NoError(t, f.Fetch(context.Background()))

	assert.FileExists(t, f.ArchivePath())
	assert.FileExists(t, filepath.Join(f.config.DataDir, "car_ims", "train", "bmw", "1.jpg"))

	labels, err := os.ReadFile(f.LabelsPath())
	require.NoError(t, err)
	assert.Equal(t, "img_name,class\n1.jpg,bmw\n", string(labels))

	// no partial downloads are left behind
	parts, err := filepath.Glob(filepath.Join(f.config.DataDir, "*.part"))
	require.NoError(t, err)
	assert.Empty(t, parts)

	assert.NotEmpty(t, hook.AllEntries())
}

func TestFetchMissingObject(t *testing.T) {
	f, _ := newTestFetcher(t, &fakeStore{objects: map[string][]byte{}})
	err := f.Fetch(context.Background())
	assert.ErrorContains(t, err, "no such key")
	assert.NoFileExists(t, f.ArchivePath())
}

func TestList(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{"a": nil, "b": nil}}
	f, hook := newTestFetcher(t, store)

	keys, err := f.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, "a", hook.AllEntries()[0].Data["key"])

	boom := errors.New("denied")
	f, _ = newTestFetcher(t, &fakeStore{listErr: boom})
	_, err = f.List(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "anyoneai-ay22-01", cfg.Bucket)
	assert.Equal(t, filepath.Join("data", "training_image_set.tgz"), NewFetcher(&fakeStore{}, cfg, nil).ArchivePath())
}
