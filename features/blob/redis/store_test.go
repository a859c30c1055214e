package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/flowrun/runtime/flow/blob"
	"goa.design/flowrun/runtime/flow/value"
)

type fakeCommands struct {
	hashes  map[string]map[string]string
	expires map[string]time.Duration
	setErr  error
	getErr  error
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		hashes:  make(map[string]map[string]string),
		expires: make(map[string]time.Duration),
	}
}

func (c *fakeCommands) HSet(_ context.Context, key string, fields map[string]any) error {
	if c.setErr != nil {
		return c.setErr
	}
	h := make(map[string]string, len(fields))
	for k, v := range fields {
		h[k] = v.(string)
	}
	c.hashes[key] = h
	return nil
}

func (c *fakeCommands) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	// go-redis returns an empty map, not an error, for missing keys.
	return c.hashes[key], nil
}

func (c *fakeCommands) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.expires[key] = ttl
	return nil
}

func newTestStore(cmds commands, ttl time.Duration) *Store {
	s := newStore(cmds, "", ttl)
	n := 0
	s.newID = func() string {
		n++
		return "blob-" + string(rune('0'+n))
	}
	return s
}

func TestWriteThenRead(t *testing.T) {
	cmds := newFakeCommands()
	s := newTestStore(cmds, 0)

	ref, err := s.Write(context.Background(), []byte("hello"), blob.WriteOptions{
		MimeType:       "text/plain",
		OrganizationID: "org-1",
		Filename:       "greeting.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ref.MimeType)
	assert.Equal(t, "greeting.txt", ref.Filename)
	require.NotEmpty(t, ref.ID)

	obj, err := s.Read(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), obj.Data)
	assert.Equal(t, "text/plain", obj.MimeType)
}

func TestWriteDefaultsMimeType(t *testing.T) {
	s := newTestStore(newFakeCommands(), 0)
	ref, err := s.Write(context.Background(), []byte{0x01}, blob.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", ref.MimeType)
}

func TestWriteAppliesTTL(t *testing.T) {
	cmds := newFakeCommands()
	s := newTestStore(cmds, time.Hour)
	ref, err := s.Write(context.Background(), []byte("x"), blob.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cmds.expires[defaultPrefix+ref.ID])
}

func TestReadMissing(t *testing.T) {
	s := newTestStore(newFakeCommands(), 0)
	_, err := s.Read(context.Background(), value.Ref{ID: "nope", MimeType: "text/plain"})
	require.ErrorContains(t, err, "blob not found")
}

func TestReadRequiresID(t *testing.T) {
	s := newTestStore(newFakeCommands(), 0)
	_, err := s.Read(context.Background(), value.Ref{})
	require.Error(t, err)
}

func TestWriteError(t *testing.T) {
	cmds := newFakeCommands()
	cmds.setErr = errors.New("conn reset")
	s := newTestStore(cmds, 0)
	_, err := s.Write(context.Background(), []byte("x"), blob.WriteOptions{})
	require.ErrorContains(t, err, "store blob")
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}
