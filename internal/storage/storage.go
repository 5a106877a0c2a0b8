package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidKey = errors.New("invalid object key")

type Object struct {
	Key    string `json:"key"`
	Bucket string `json:"bucket"`
}

// ObjectStore is the upload/download contract the workflow needs.
type ObjectStore interface {
	Upload(ctx context.Context, key, filePath, contentType string) (*Object, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (url string, expiresAt time.Time, err error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename keeps a recognisable, path-free file name.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	if len(name) > 120 {
		ext := filepath.Ext(name)
		if len(ext) > 20 {
			ext = ""
		}
		name = name[:120-len(ext)] + ext
	}
	return name
}

// ObjectKey lays out tenants/{tenant}/campaigns/{campaign}/{kind}/{uuid}-{name}.
func ObjectKey(tenantID, campaignID uuid.UUID, kind, filename string) string {
	return fmt.Sprintf("tenants/%s/campaigns/%s/%s/%s-%s",
		tenantID, campaignID, kind, uuid.NewString(), SanitizeFilename(filename))
}

// LocalStore keeps objects on disk under root/bucket and hands out
// HS256-signed download tokens served by the API at /files/:token.
type LocalStore struct {
	root    string
	bucket  string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewLocalStore(root, bucket, baseURL, secret string) (*LocalStore, error) {
	dir := filepath.Join(root, bucket)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{
		root:    root,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean != "/"+key || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, s.bucket, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Upload(ctx context.Context, key, filePath, contentType string) (*Object, error) {
	dst, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return nil, err
	}

	src, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src}); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, err
	}
	return &Object{Key: key, Bucket: s.bucket}, nil
}

type downloadClaims struct {
	jwt.RegisteredClaims
}

const downloadAudience = "download"

func (s *LocalStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if _, err := s.path(key); err != nil {
		return "", time.Time{}, err
	}
	expiresAt := s.now().Add(ttl)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, downloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			Audience:  jwt.ClaimStrings{downloadAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.baseURL + "/files/" + token, expiresAt, nil
}

// Open verifies a download token and opens the object it names.
func (s *LocalStore) Open(token string) (f *os.File, filename, contentType string, err error) {
	var claims downloadClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithAudience(downloadAudience), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, "", "", err
	}

	p, err := s.path(claims.Subject)
	if err != nil {
		return nil, "", "", err
	}
	f, err = os.Open(p)
	if err != nil {
		return nil, "", "", err
	}

	filename = path.Base(claims.Subject)
	if len(filename) > 37 && filename[36] == '-' {
		if _, err := uuid.Parse(filename[:36]); err == nil {
			filename = filename[37:]
		}
	}
	contentType = mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, filename, contentType, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
