package compressed

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMiss = errors.New("miss")

type PseudoCache struct {
	cache map[string][]byte
}

func (c *PseudoCache) Get(key string) ([]byte, error) {
	b, ok := c.cache[key]
	if !ok {
		return nil, errMiss
	}
	return b, nil
}

func (c *PseudoCache) Set(key string, content []byte, duration time.Duration) error {
	c.cache[key] = content
	return nil
}

func (c *PseudoCache) Delete(key string) error {
	delete(c.cache, key)
	return nil
}

const history = `[{"kind":"user","text":"I feel anxious"},{"kind":"bot","text":"It's okay to feel anxious..."},` +
	`{"kind":"user","text":"I feel anxious"},{"kind":"bot","text":"It's okay to feel anxious..."}]`

func TestPseudoCache(t *testing.T) {
	backing := &PseudoCache{cache: make(map[string][]byte)}
	c := NewCompressedCache(backing)

	require.NoError(t, c.Set("history:u1", []byte(history), time.Hour))
	_, stored := backing.cache["gz:history:u1"]
	assert.True(t, stored, "entry should be stored under the gz: prefix")

	got, err := c.Get("history:u1")
	require.NoError(t, err)
	assert.Equal(t, history, string(got))

	require.NoError(t, c.Delete("history:u1"))
	_, err = c.Get("history:u1")
	assert.ErrorIs(t, err, errMiss)
}

func TestSetEmptyIsNoop(t *testing.T) {
	backing := &PseudoCache{cache: make(map[string][]byte)}
	c := NewCompressedCache(backing)

	require.NoError(t, c.Set("empty", nil, time.Hour))
	assert.Empty(t, backing.cache)
}

func TestCorruptEntry(t *testing.T) {
	backing := &PseudoCache{cache: map[string][]byte{"gz:short": []byte("abc")}}
	c := NewCompressedCache(backing)

	_, err := c.Get("short")
	assert.Error(t, err)
}

func TestCompression(t *testing.T) {
	compressed, checksum, err := compress([]byte(history))
	require.NoError(t, err)
	require.NotNil(t, compressed)

	uncompressed, err := uncompress(compressed, checksum)
	require.NoError(t, err)
	assert.Equal(t, history, string(uncompressed))

	checksum[0] ^= 0xff
	_, err = uncompress(compressed, checksum)
	assert.Error(t, err, "checksum mismatch should be detected")
}
