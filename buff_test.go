package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffClient(t *testing.T, handler http.Handler) (*BuffClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &Config{BuffBaseURL: server.URL}
	return NewBuffClient(cfg, map[string]Account{"alpha": {Username: "alpha"}}), server
}

func TestBuffCheckCookiesValid(t *testing.T) {
	code := "OK"
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/account/api/user/info", r.URL.Path)
		fmt.Fprintf(w, `{"code":%q,"msg":"","data":{}}`, code)
	}))

	valid, err := client.CheckCookiesValid(context.Background(), "alpha")
	require.NoError(t, err)
	assert.True(t, valid)

	code = "Login Required"
	valid, err = client.CheckCookiesValid(context.Background(), "alpha")
	require.NoError(t, err, "an invalid session is a normal false result, not an error")
	assert.False(t, valid)
}

func TestBuffCheckCookiesTransportError(t *testing.T) {
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.CheckCookiesValid(context.Background(), "alpha")
	assert.Error(t, err)
}

func TestBuffListPendingSales(t *testing.T) {
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/market/steam_trade", r.URL.Path)
		fmt.Fprint(w, `{"code":"OK","data":[
			{"id":"s-1","items":[{"assetid":"a1","goods_id":33815},{"assetid":"a2","goods_id":42530}]},
			{"id":"s-2","items":[{"assetid":"a3","goods_id":33815}]}
		]}`)
	}))

	sales, err := client.ListPendingSales(context.Background(), "alpha")
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "s-1", sales[0].ID)
	require.Len(t, sales[0].Items, 2)
	assert.Equal(t, "a1", sales[0].Items[0].AssetID)
	assert.Equal(t, int64(33815), sales[0].Items[0].GoodsID)
	assert.Equal(t, "s-2", sales[1].ID)
}

func TestBuffListPendingSalesErrorCode(t *testing.T) {
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"Login Required","data":null}`)
	}))

	_, err := client.ListPendingSales(context.Background(), "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Login Required")
}

func TestBuffVerifyAuthCode(t *testing.T) {
	var submitted string
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/account/api/sms_code/verify", r.URL.Path)
		require.NoError(t, r.ParseForm())
		submitted = r.PostForm.Get("code")
		fmt.Fprint(w, `{"code":"OK"}`)
	}))

	ok, err := client.VerifyAuthCode(context.Background(), "alpha", "54321")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "54321", submitted)
}

func TestBuffSendSmsCodeRefused(t *testing.T) {
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/account/api/sms_code/send", r.URL.Path)
		fmt.Fprint(w, `{"code":"Rate Limit"}`)
	}))

	sent, err := client.SendSmsCode(context.Background(), "alpha")
	require.NoError(t, err, "a refusal is not a transport error")
	assert.False(t, sent)
}

func TestBuffCookieRoundTrip(t *testing.T) {
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	require.NoError(t, client.SetCookies("alpha", "session=abc; csrf_token=xyz"))

	blob := client.GetCookies("alpha")
	assert.Contains(t, blob, "session=abc")
	assert.Contains(t, blob, "csrf_token=xyz")
}

func TestBuffSetCookiesMalformed(t *testing.T) {
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	assert.Error(t, client.SetCookies("alpha", "not-a-cookie-pair"))
}

func TestBuffCookiesSentWithRequests(t *testing.T) {
	var gotCookie string
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		fmt.Fprint(w, `{"code":"OK"}`)
	}))

	require.NoError(t, client.SetCookies("alpha", "session=abc"))
	_, err := client.CheckCookiesValid(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "abc", gotCookie)
}

func TestBuffSessionsAreIsolatedPerBot(t *testing.T) {
	client, _ := newTestBuffClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	require.NoError(t, client.SetCookies("alpha", "session=a"))
	require.NoError(t, client.SetCookies("bravo", "session=b"))

	assert.Contains(t, client.GetCookies("alpha"), "session=a")
	assert.Contains(t, client.GetCookies("bravo"), "session=b")
}
