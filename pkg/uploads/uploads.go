// Package uploads receives the multipart form posted with an image message. Accepted images
// live only as long as one exchange: callers must Release the form on every exit path.
package uploads

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultMaxImageBytes is the largest image accepted (5MB).
	DefaultMaxImageBytes = 5 * 1024 * 1024

	// RefPrefix is prepended to the stored file name to form the reference kept on a turn.
	RefPrefix = "uploads/"

	maxFieldBytes = 64 * 1024
	formOverhead  = 1024 * 1024
)

var (
	ErrNotImage    = errors.New("only image files are allowed")
	ErrTooLarge    = errors.New("image exceeds the maximum upload size")
	ErrBadForm     = errors.New("invalid multipart form")
	ErrExtraImages = errors.New("only one image may be uploaded")

	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// File is an image written to the upload directory.
type File struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

type Form struct {
	Message string
	UserID  string
	Image   *File
}

// ImageRef returns the opaque reference recorded on the user turn, or "" without an image.
func (f *Form) ImageRef() string {
	if f == nil || f.Image == nil {
		return ""
	}
	return RefPrefix + f.Image.Name
}

// Release deletes the uploaded image, if any. It is safe to call more than once.
func (f *Form) Release() {
	if f == nil || f.Image == nil {
		return
	}
	if err := os.Remove(f.Image.Path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("path", f.Image.Path).Error("error deleting uploaded file")
		return
	}
	log.WithField("path", f.Image.Path).Debug("deleted uploaded file")
}

type Receiver struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewReceiver creates the upload directory if needed. maxBytes <= 0 selects DefaultMaxImageBytes.
func NewReceiver(dir string, maxBytes int64) (*Receiver, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "sentichat-uploads")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.WithMessagef(err, "could not create upload directory %s", dir)
	}
	return &Receiver{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

func (r *Receiver) Dir() string {
	return r.dir
}

func (r *Receiver) MaxBytes() int64 {
	return r.maxBytes
}

// Receive reads the message, userId and optional image fields. On error nothing is left on disk.
func (r *Receiver) Receive(w http.ResponseWriter, req *http.Request) (*Form, error) {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxBytes+formOverhead)

	mr, err := req.MultipartReader()
	if err != nil {
		return nil, errors.Wrap(ErrBadForm, err.Error())
	}

	form := &Form{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			form.Release()
			return nil, classifyReadError(err)
		}

		switch part.FormName() {
		case "message":
			form.Message, err = readField(part)
		case "userId":
			form.UserID, err = readField(part)
		case "image":
			if form.Image != nil {
				err = ErrExtraImages
				break
			}
			form.Image, err = r.saveImage(part)
		default:
			_, err = io.Copy(io.Discard, part)
		}
		part.Close()

		if err != nil {
			form.Release()
			return nil, classifyReadError(err)
		}
	}

	return form, nil
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxFieldBytes {
		return "", errors.Wrapf(ErrBadForm, "field %s is too long", part.FormName())
	}
	return string(b), nil
}

func (r *Receiver) saveImage(part *multipart.Part) (*File, error) {
	contentType := part.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, ErrNotImage
	}

	pattern := fmt.Sprintf("%d-*-%s", r.now().UnixMilli(), sanitizeFileName(part.FileName()))
	out, err := os.CreateTemp(r.dir, pattern)
	if err != nil {
		return nil, errors.WithMessage(err, "could not create upload file")
	}

	written, copyErr := io.Copy(out, io.LimitReader(part, r.maxBytes+1))
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		err = copyErr
	case written > r.maxBytes:
		err = ErrTooLarge
	case closeErr != nil:
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(out.Name()); rmErr != nil {
			log.WithError(rmErr).WithField("path", out.Name()).Error("error deleting rejected upload")
		}
		return nil, err
	}

	return &File{
		Path:        out.Name(),
		Name:        filepath.Base(out.Name()),
		ContentType: mediaType,
		Size:        written,
	}, nil
}

func sanitizeFileName(name string) string {
	name = unsafeFileChars.ReplaceAllString(filepath.Base(name), "_")
	if name == "" || name == "." || name == "_" {
		return "image"
	}
	return name
}

func classifyReadError(err error) error {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return ErrTooLarge
	case errors.Is(err, ErrNotImage), errors.Is(err, ErrTooLarge), errors.Is(err, ErrExtraImages), errors.Is(err, ErrBadForm):
		return err
	default:
		return errors.Wrap(ErrBadForm, err.Error())
	}
}
