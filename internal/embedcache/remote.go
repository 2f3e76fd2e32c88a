package embedcache

import (
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog"
)

// remoteMirror is the optional, off-by-default shared cache tier backed by a
// Redis-compatible store. It lets a fleet of independent engine processes on
// the same host share warm embeddings without violating the single-writer-
// per-database rule: the mirror caches derived data only, and failures
// writing to or reading from it are logged and otherwise ignored.
type remoteMirror struct {
	pool *redis.Pool
	log  zerolog.Logger
	dim  int
}

func newRemoteMirror(addr string, dim int, log zerolog.Logger) *remoteMirror {
	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
	}
	return &remoteMirror{pool: pool, log: log.With().Str("component", "embed-cache-mirror").Logger(), dim: dim}
}

func (m *remoteMirror) get(key string) ([]float32, bool) {
	conn := m.pool.Get()
	defer conn.Close()

	blob, err := redis.Bytes(conn.Do("GET", mirrorKey(key)))
	if err != nil {
		if err != redis.ErrNil {
			m.log.Debug().Err(err).Msg("remote cache mirror read failed")
		}
		return nil, false
	}
	return decodeVector(blob, m.dim), true
}

func (m *remoteMirror) put(key string, vec []float32) {
	conn := m.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", mirrorKey(key), encodeVector(vec)); err != nil {
		m.log.Debug().Err(err).Msg("remote cache mirror write failed")
	}
}

func (m *remoteMirror) close() error {
	return m.pool.Close()
}

func mirrorKey(key string) string {
	return "engram:embed:" + key
}
