package cwmp

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// ConnectionRequestAuth performs an ACS-initiated connection request: a GET
// against the CPE's ConnectionRequestURL answering the digest challenge, so
// the device contacts the ACS outside its periodic schedule. Returns true
// when the CPE accepted the request.
func ConnectionRequestAuth(username, password, uri string) (bool, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return false, err
	}
	uriPath := parsed.RequestURI()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Timeout: 10 * time.Second, Jar: jar}

	// First round trip collects the 401 challenge.
	resp, err := client.Get(uri)
	if err != nil {
		return false, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		return false, fmt.Errorf("expected 401 challenge, got %d", resp.StatusCode)
	}

	challenge := digestAuthParams(resp)
	if challenge == nil {
		return false, fmt.Errorf("no digest challenge in 401 response")
	}
	realm := challenge["realm"]
	nonce := challenge["nonce"]
	qop := challenge["qop"]
	opaque := challenge["opaque"]

	ha1 := h(fmt.Sprintf("%s:%s:%s", username, realm, password))
	ha2 := h(fmt.Sprintf("GET:%s", uriPath))
	cnonce := randomKey()
	response := h(strings.Join([]string{ha1, nonce, "00000001", cnonce, qop, ha2}, ":"))

	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", cnonce="%s", nc=00000001, qop=%s, response="%s", opaque="%s", algorithm=MD5`,
		username, realm, nonce, uriPath, cnonce, qop, response, opaque))
	resp2, err := client.Do(req)
	if err != nil {
		return false, err
	}
	io.Copy(io.Discard, resp2.Body)
	resp2.Body.Close()
	return resp2.StatusCode == http.StatusOK, nil
}

// digestAuthParams parses the WWW-Authenticate digest header into a map,
// returning nil when the header is absent or not a digest challenge.
func digestAuthParams(r *http.Response) map[string]string {
	s := strings.SplitN(r.Header.Get("Www-Authenticate"), " ", 2)
	if len(s) != 2 || s[0] != "Digest" {
		return nil
	}
	result := map[string]string{}
	for _, kv := range strings.Split(s[1], ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		result[strings.Trim(parts[0], "\" ")] = strings.Trim(parts[1], "\" ")
	}
	return result
}

func randomKey() string {
	k := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		panic("rand.Read() failed")
	}
	return base64.StdEncoding.EncodeToString(k)
}

func h(data string) string {
	digest := md5.New()
	digest.Write([]byte(data))
	return fmt.Sprintf("%x", digest.Sum(nil))
}
