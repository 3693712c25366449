package mongostore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/store/mongostore"
	"github.com/stretchr/testify/require"
)

// Requires a reachable MongoDB; set MONGODB_URI to run.
func setupMongo(t *testing.T) *mongostore.MongoStore {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	db := fmt.Sprintf("agent_auth_test_%d", time.Now().UnixNano())
	s, err := mongostore.Connect(ctx, uri, db, "records")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func TestMongoStore(t *testing.T) {
	s := setupMongo(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.SessionKey("s1"), []byte(`{"id":"s1"}`), store.SessionTTL))
	value, err := s.Get(ctx, store.SessionKey("s1"))
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"s1"}`, string(value))

	require.NoError(t, s.Put(ctx, store.SessionKey("s1"), []byte(`{"id":"s1","v":2}`), store.SessionTTL))
	value, err = s.Get(ctx, store.SessionKey("s1"))
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"s1","v":2}`, string(value))

	require.NoError(t, s.Put(ctx, store.AuthCodeKey("c"), []byte("x"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, err = s.Get(ctx, store.AuthCodeKey("c"))
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Delete(ctx, store.SessionKey("s1")))
	_, err = s.Get(ctx, store.SessionKey("s1"))
	require.ErrorIs(t, err, store.ErrNotFound)
}
