package cwmp

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestAuthParams(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Www-Authenticate",
		`Digest realm="HuaweiHomeGateway", nonce="abc123", qop="auth", opaque="xyz"`)

	params := digestAuthParams(resp)
	require.NotNil(t, params)
	assert.Equal(t, "HuaweiHomeGateway", params["realm"])
	assert.Equal(t, "abc123", params["nonce"])
	assert.Equal(t, "auth", params["qop"])

	resp.Header.Set("Www-Authenticate", "Basic realm=x")
	assert.Nil(t, digestAuthParams(resp))

	resp.Header.Del("Www-Authenticate")
	assert.Nil(t, digestAuthParams(resp))
}

func TestConnectionRequestAuth(t *testing.T) {
	const (
		username = "SN001"
		password = "crpass"
		realm    = "HomeGateway"
		nonce    = "n0nce"
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			w.Header().Set("Www-Authenticate",
				fmt.Sprintf(`Digest realm="%s", nonce="%s", qop="auth"`, realm, nonce))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		params := map[string]string{}
		for _, kv := range strings.Split(strings.TrimPrefix(auth, "Digest "), ",") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				params[strings.Trim(parts[0], "\" ")] = strings.Trim(parts[1], "\" ")
			}
		}
		ha1 := h(fmt.Sprintf("%s:%s:%s", username, realm, password))
		ha2 := h("GET:" + r.URL.RequestURI())
		want := h(strings.Join([]string{ha1, nonce, "00000001", params["cnonce"], "auth", ha2}, ":"))
		if params["response"] != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok, err := ConnectionRequestAuth(username, password, srv.URL+"/cr")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ConnectionRequestAuth(username, "wrong", srv.URL+"/cr")
	require.NoError(t, err)
	assert.False(t, ok)
}
