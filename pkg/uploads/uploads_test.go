package uploads

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type imagePart struct {
	fileName    string
	contentType string
	data        []byte
}

func newMultipartRequest(t *testing.T, fields map[string]string, images ...imagePart) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, img.fileName))
		h.Set("Content-Type", img.contentType)
		pw, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(img.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/chatbot-with-image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestReceiveImage(t *testing.T) {
	dir := t.TempDir()
	r, err := NewReceiver(dir, 1024)
	require.NoError(t, err)

	req := newMultipartRequest(t,
		map[string]string{"message": "look at my cat", "userId": "u1"},
		imagePart{fileName: "../my cat.png", contentType: "image/png", data: []byte("\x89PNG fake")})

	form, err := r.Receive(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, "look at my cat", form.Message)
	assert.Equal(t, "u1", form.UserID)
	require.NotNil(t, form.Image)
	assert.Equal(t, "image/png", form.Image.ContentType)
	assert.EqualValues(t, len("\x89PNG fake"), form.Image.Size)
	assert.True(t, strings.HasSuffix(form.Image.Name, "-my_cat.png"), form.Image.Name)
	assert.Equal(t, RefPrefix+form.Image.Name, form.ImageRef())
	assert.Len(t, dirEntries(t, dir), 1)

	form.Release()
	form.Release()
	assert.Empty(t, dirEntries(t, dir))
}

func TestReceiveWithoutImage(t *testing.T) {
	dir := t.TempDir()
	r, err := NewReceiver(dir, 1024)
	require.NoError(t, err)

	form, err := r.Receive(httptest.NewRecorder(), newMultipartRequest(t, map[string]string{"message": "just text"}))
	require.NoError(t, err)
	assert.Nil(t, form.Image)
	assert.Empty(t, form.ImageRef())
	form.Release()
}

func TestReceiveRejections(t *testing.T) {
	tests := []struct {
		name        string
		images      []imagePart
		expectedErr error
	}{
		{
			name:        "text/plain upload",
			images:      []imagePart{{fileName: "notes.txt", contentType: "text/plain", data: []byte("hello")}},
			expectedErr: ErrNotImage,
		},
		{
			name:        "missing content type",
			images:      []imagePart{{fileName: "blob", contentType: "", data: []byte("hello")}},
			expectedErr: ErrNotImage,
		},
		{
			name:        "oversized image",
			images:      []imagePart{{fileName: "big.jpg", contentType: "image/jpeg", data: bytes.Repeat([]byte("a"), 2048)}},
			expectedErr: ErrTooLarge,
		},
		{
			name: "two images",
			images: []imagePart{
				{fileName: "a.png", contentType: "image/png", data: []byte("a")},
				{fileName: "b.png", contentType: "image/png", data: []byte("b")},
			},
			expectedErr: ErrExtraImages,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			r, err := NewReceiver(dir, 1024)
			require.NoError(t, err)

			req := newMultipartRequest(t, map[string]string{"message": "hi", "userId": "u1"}, tc.images...)
			form, err := r.Receive(httptest.NewRecorder(), req)
			assert.Nil(t, form)
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Empty(t, dirEntries(t, dir), "no file may remain after a rejected upload")
		})
	}
}

func TestReceiveNotMultipart(t *testing.T) {
	r, err := NewReceiver(t.TempDir(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, DefaultMaxImageBytes, r.MaxBytes())

	req := httptest.NewRequest(http.MethodPost, "/chatbot-with-image", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	_, err = r.Receive(httptest.NewRecorder(), req)
	assert.ErrorIs(t, err, ErrBadForm)
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"cat.png":          "cat.png",
		"../../etc/passwd": "passwd",
		"my photo (1).jpg": "my_photo_1_.jpg",
		"":                 "image",
	}
	for in, expected := range tests {
		assert.Equal(t, expected, sanitizeFileName(in), in)
	}
}
