package compressed

import (
	"bytes"
	"compress/gzip"

	log "github.com/sirupsen/logrus"

	// simple checksum usage for validation
	"crypto/md5" // nolint:gosec
	"fmt"
	"time"

	"github.com/sentichat/sentichat/pkg/apis/cache"
)

const (
	cachePrefix = "gz:"
)

// Cache gzips values before handing them to the wrapped cache. Chat histories are
// repetitive text and shrink well.
type Cache struct {
	Cache cache.Cache
}

func NewCompressedCache(c cache.Cache) *Cache {
	return &Cache{
		Cache: c,
	}
}

func (c Cache) Get(key string) ([]byte, error) {
	b, err := c.Cache.Get(cachePrefix + key)
	if err != nil {
		return nil, err
	}

	dataLen := len(b)
	if dataLen < 16 {
		return nil, fmt.Errorf("invalid cache item length")
	}

	// strip off the last 16 bytes which is the checksum
	data := b[:dataLen-16]
	var checksum [16]byte
	copy(checksum[:], b[dataLen-16:])
	return uncompress(data, checksum)
}

func (c Cache) Set(key string, content []byte, duration time.Duration) error {
	startLen := len(content)
	if startLen <= 0 {
		log.Warningf("Key: %s data size is 0", key)
		return nil
	}

	data, checksum, err := compress(content)
	if err != nil {
		return err
	}
	data = append(data, checksum[:]...)

	log.WithFields(log.Fields{
		"key":    key,
		"before": startLen,
		"after":  len(data),
	}).Debug("compressed cache entry")

	return c.Cache.Set(cachePrefix+key, data, duration)
}

func (c Cache) Delete(key string) error {
	return c.Cache.Delete(cachePrefix + key)
}

func compress(value []byte) ([]byte, [16]byte, error) {
	var buf bytes.Buffer
	sum := md5.Sum(value) // nolint:gosec

	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(value); err != nil {
		return nil, sum, err
	}
	if err := zw.Close(); err != nil {
		return nil, sum, err
	}
	return buf.Bytes(), sum, nil
}

func uncompress(value []byte, vSum [16]byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		return nil, err
	}

	var uncompressed bytes.Buffer
	if _, err := uncompressed.ReadFrom(zr); err != nil {
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}

	ret := uncompressed.Bytes()
	sum := md5.Sum(ret) // nolint:gosec
	if sum != vSum {
		return nil, fmt.Errorf("check sum validation did not match")
	}

	return ret, nil
}
