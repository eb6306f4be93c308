package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.RequireAuth("secret")

	client, err := New(context.Background(), Options{Addr: srv.Addr(), Password: "secret"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	srv.CheckGet(t, "k", "v")

	_, err = New(context.Background(), Options{Addr: srv.Addr(), Password: "wrong"})
	require.Error(t, err)
}

func TestNewUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := New(context.Background(), Options{Addr: addr})
	require.ErrorContains(t, err, addr)
}
