package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T, cookie string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "test-agent")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	}
	return req
}

func mintedCookie(t *testing.T, r *Resolver) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Resolve(rec, newRequest(t, ""), "1.2.3.4", nil)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, CookieName, cookies[0].Name)
	return cookies[0].Value
}

func TestFingerprintDeterministic(t *testing.T) {
	r := NewResolver("secret", false)

	a := r.Fingerprint("1.2.3.4", "X")
	b := r.Fingerprint("1.2.3.4", "X")
	c := r.Fingerprint("5.6.7.8", "X")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestFingerprintDependsOnSecret(t *testing.T) {
	a := NewResolver("secret-one", false).Fingerprint("1.2.3.4", "X")
	b := NewResolver("secret-two", false).Fingerprint("1.2.3.4", "X")
	assert.NotEqual(t, a, b)
}

func TestVerifyCookieRoundTrip(t *testing.T) {
	r := NewResolver("secret", false)
	raw := mintedCookie(t, r)

	id, ok := r.VerifyCookie(raw)
	require.True(t, ok)
	assert.Equal(t, raw[:strings.LastIndex(raw, ".")], id)
}

func TestVerifyCookieRejectsTampering(t *testing.T) {
	r := NewResolver("secret", false)
	raw := mintedCookie(t, r)

	cases := map[string]string{
		"no signature":      strings.Split(raw, ".")[0],
		"empty":             "",
		"garbage":           "not-a-cookie",
		"flipped signature": raw[:len(raw)-1] + flip(raw[len(raw)-1]),
		"wrong secret":      mintedCookie(t, NewResolver("other", false)),
	}
	for name, value := range cases {
		_, ok := r.VerifyCookie(value)
		assert.False(t, ok, name)
	}
}

func flip(b byte) string {
	if b == 'a' {
		return "b"
	}
	return "a"
}

func TestResolveMintsVisitorCookie(t *testing.T) {
	r := NewResolver("secret", false)
	rec := httptest.NewRecorder()

	id := r.Resolve(rec, newRequest(t, ""), "1.2.3.4", nil)

	assert.Equal(t, TypeVisitor, id.Type)
	require.NotNil(t, id.VisitorID)
	assert.Equal(t, *id.VisitorID, id.Identifier)
	assert.NotEmpty(t, id.FingerprintHash)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.False(t, cookies[0].Secure)
}

func TestResolveReturningVisitor(t *testing.T) {
	r := NewResolver("secret", false)
	raw := mintedCookie(t, r)
	wantID, _ := r.VerifyCookie(raw)

	rec := httptest.NewRecorder()
	id := r.Resolve(rec, newRequest(t, raw), "1.2.3.4", nil)

	assert.Equal(t, TypeVisitor, id.Type)
	assert.Equal(t, wantID, id.Identifier)
	assert.Empty(t, rec.Result().Cookies(), "valid cookie should not be reissued")
}

func TestResolveTamperedCookieIsReplacedSilently(t *testing.T) {
	r := NewResolver("secret", false)
	raw := mintedCookie(t, r)
	tampered := raw[:len(raw)-1] + flip(raw[len(raw)-1])

	rec := httptest.NewRecorder()
	id := r.Resolve(rec, newRequest(t, tampered), "1.2.3.4", nil)

	assert.Equal(t, TypeVisitor, id.Type)
	require.Len(t, rec.Result().Cookies(), 1)
	fresh, ok := r.VerifyCookie(rec.Result().Cookies()[0].Value)
	require.True(t, ok)
	assert.Equal(t, fresh, id.Identifier)
}

func TestResolveAuthenticated(t *testing.T) {
	r := NewResolver("secret", false)
	userID := uint(42)

	rec := httptest.NewRecorder()
	id := r.Resolve(rec, newRequest(t, ""), "1.2.3.4", &userID)

	assert.Equal(t, TypeAuthenticated, id.Type)
	assert.Equal(t, "42", id.Identifier)
	require.NotNil(t, id.UserID)
	assert.NotNil(t, id.VisitorID, "authenticated requests still get a visitor cookie")
	assert.Len(t, rec.Result().Cookies(), 1)
}

func TestResolveDirect(t *testing.T) {
	r := NewResolver("secret", false)

	anon := r.ResolveDirect("1.2.3.4", "X", nil)
	assert.Equal(t, TypeAnonymous, anon.Type)
	assert.Equal(t, anon.FingerprintHash, anon.Identifier)
	assert.Nil(t, anon.VisitorID)

	userID := uint(7)
	authed := r.ResolveDirect("1.2.3.4", "X", &userID)
	assert.Equal(t, TypeAuthenticated, authed.Type)
	assert.Equal(t, "7", authed.Identifier)
}

func TestKeyPrecedence(t *testing.T) {
	userID := uint(3)
	visitorID := "vis-123"

	assert.Equal(t, "u:3", Resolved{UserID: &userID, VisitorID: &visitorID, FingerprintHash: "abc"}.Key())
	assert.Equal(t, "v:vis-123", Resolved{VisitorID: &visitorID, FingerprintHash: "abc"}.Key())
	assert.Equal(t, "f:abc", Resolved{FingerprintHash: "abc"}.Key())
}
