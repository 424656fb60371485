package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-payments/internal/common"
)

func TestIdemRejectsReplay(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	h := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	newReq := func(user string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/payments/create-order", nil)
		req.Header.Set("Idempotency-Key", "abc")
		return req.WithContext(common.WithUserID(req.Context(), user))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, newReq("u1"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, newReq("u1"))
	require.Equal(t, http.StatusConflict, rr.Code)

	// same key from another caller is a different request
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, newReq("u2"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 2, calls)
}

func TestIdemReleasesKeyAfterServerError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	statuses := []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusOK}
	calls := 0
	h := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		common.JSON(w, statuses[calls], map[string]any{"attempt": calls})
		calls++
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/payments/verify", nil)
		req.Header.Set("Idempotency-Key", "k1")
		req = req.WithContext(common.WithUserID(req.Context(), "u1"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusInternalServerError, send())
	require.Empty(t, mr.Keys(), "failed attempt releases the key")
	require.Equal(t, http.StatusBadGateway, send())
	require.Equal(t, http.StatusOK, send())
	require.Len(t, mr.Keys(), 1)
	require.Equal(t, http.StatusConflict, send(), "successful attempt keeps the key")
	require.Equal(t, 3, calls)
}

func TestIdemKeepsKeyAfterClientError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "bad signature", nil)
	}))
	for _, want := range []int{http.StatusBadRequest, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/payments/verify", nil)
		req.Header.Set("Idempotency-Key", "k2")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, want, rr.Code)
	}
}

func TestIdemWithoutHeaderPassesThrough(t *testing.T) {
	calls := 0
	h := common.Idem{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	}
	require.Equal(t, 2, calls)
}
