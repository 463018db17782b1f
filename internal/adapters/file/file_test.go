package file

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFile(t *testing.T) {
	tests := []struct {
		name       string
		inputBytes []byte
		status     int
		wantErr    bool
	}{
		{
			name:       "success",
			inputBytes: []byte("test\n"),
			status:     http.StatusOK,
			wantErr:    false,
		},
		{
			name:       "not found",
			inputBytes: []byte("not found"),
			status:     http.StatusNotFound,
			wantErr:    true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, err := w.Write(tc.inputBytes)
				assert.NoError(t, err)
			}))
			defer srv.Close()

			res, err := DownloadFile(t.Context(), srv.URL)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.inputBytes, res)
			}
		})
	}
}

func TestSaveFile(t *testing.T) {
	tests := []struct {
		name      string
		content   []byte
		extension string
		wantExt   string
		wantSize  int64
	}{
		{
			name:      "success",
			content:   []byte("test\n"),
			extension: "txt",
			wantExt:   ".txt",
			wantSize:  5,
		},
		{
			name:      "dotted extension",
			content:   []byte("jpeg"),
			extension: ".jpg",
			wantExt:   ".jpg",
			wantSize:  4,
		},
		{
			name:      "empty file",
			content:   []byte(""),
			extension: "dat",
			wantExt:   ".dat",
			wantSize:  0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path, err := SaveFile(dir, tc.content, tc.extension)
			require.NoError(t, err)
			defer RemoveFile(path)

			assert.Equal(t, dir, filepath.Dir(path))
			assert.Equal(t, tc.wantExt, filepath.Ext(path))

			stat, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSize, stat.Size())
		})
	}
}

func TestSaveFileMissingDir(t *testing.T) {
	_, err := SaveFile(filepath.Join(t.TempDir(), "nope"), []byte("x"), "bin")
	require.Error(t, err)
}

func TestGetFile(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		ext     string
		want    []byte
	}{
		{
			name:    "success",
			content: []byte("test\n"),
			ext:     "txt",
			want:    []byte("test\n"),
		},
		{
			name:    "empty data",
			content: []byte(""),
			ext:     "dat",
			want:    []byte{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path, err := SaveFile(t.TempDir(), tc.content, tc.ext)
			require.NoError(t, err)
			defer RemoveFile(path)

			file, err := GetFile(path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, file)
		})
	}
}

func TestFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write([]byte("image bytes"))
		assert.NoError(t, err)
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "images")
	f, err := NewFetcher(dir)
	require.NoError(t, err)

	path, err := f.Fetch(t.Context(), srv.URL+"/file/bot123/photos/file_1.JPG?x=1")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".jpg", filepath.Ext(path))

	data, err := f.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("image bytes"), data)
}

func TestExtensionOf(t *testing.T) {
	tests := map[string]string{
		"https://api.telegram.org/file/bot1/photos/file_0.jpg": ".jpg",
		"https://api.telegram.org/file/bot1/photos/file_0.PNG": ".png",
		"https://api.telegram.org/file/bot1/photos/file_0":     ".jpg",
		"https://example.com/a.webp?token=abc#frag":            ".webp",
		"https://example.com/archive.something-very-long-ext":  ".jpg",
	}

	for url, want := range tests {
		assert.Equal(t, want, extensionOf(url), url)
	}
}

func TestArtifactAllocator(t *testing.T) {
	alloc := ArtifactAllocator("/data/out", "png")

	seen := map[string]bool{}
	for range 50 {
		p, err := alloc()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(p, "/data/out/"))
		assert.Equal(t, ".png", filepath.Ext(p))
		assert.False(t, seen[p], "allocator returned %s twice", p)
		seen[p] = true
	}
}
