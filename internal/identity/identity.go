// Package identity resolves the logical actor behind a request: an
// authenticated user, a returning visitor carrying a signed cookie, or an
// anonymous client correlated only by a weak fingerprint. Resolution never
// fails; the fingerprint is the floor every request lands on.
package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CookieName is the visitor cookie. Value format: "<uuid>.<16-hex-signature>".
const CookieName = "__vid"

const cookieMaxAge = 365 * 24 * 60 * 60 // 1 year

// Type classifies the actor, strongest first.
type Type string

const (
	TypeAuthenticated Type = "authenticated"
	TypeVisitor       Type = "visitor"
	TypeAnonymous     Type = "anonymous"
)

// Resolved is the per-request identity. Identifier is the authoritative key
// for Type; lookups still check userID > visitorID > fingerprint in order
// because the same person may have older records under a weaker key.
type Resolved struct {
	Type            Type
	Identifier      string
	UserID          *uint
	VisitorID       *string
	FingerprintHash string
	IPAddress       string
	UserAgent       string
}

// Key returns the authoritative dedup key, prefixed so the three key spaces
// can share one unique-indexed column.
func (r Resolved) Key() string {
	switch {
	case r.UserID != nil:
		return fmt.Sprintf("u:%d", *r.UserID)
	case r.VisitorID != nil:
		return "v:" + *r.VisitorID
	default:
		return "f:" + r.FingerprintHash
	}
}

// Resolver derives identities from requests and manages the signed visitor
// cookie.
type Resolver struct {
	secret string
	secure bool
}

// NewResolver creates a Resolver. secure controls the cookie Secure flag and
// should be true in production.
func NewResolver(secret string, secure bool) *Resolver {
	return &Resolver{secret: secret, secure: secure}
}

// Fingerprint derives the weak correlation key from ip and user agent.
// Clients sharing one IP and UA collide; that is an accepted limitation.
func (r *Resolver) Fingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "::" + userAgent + "::" + r.secret))
	return hex.EncodeToString(sum[:])[:32]
}

func (r *Resolver) sign(value string) string {
	sum := sha256.Sum256([]byte(value + "::" + r.secret))
	return hex.EncodeToString(sum[:])[:16]
}

// VerifyCookie extracts the visitor id from a raw cookie value. Any
// malformed or tampered value yields ("", false) — never an error.
func (r *Resolver) VerifyCookie(raw string) (string, bool) {
	dot := strings.LastIndex(raw, ".")
	if dot == -1 {
		return "", false
	}
	id, sig := raw[:dot], raw[dot+1:]
	expected := r.sign(id)
	if len(sig) != len(expected) {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		log.Printf("Invalid visitor cookie signature for id %.8s...", id)
		return "", false
	}
	return id, true
}

func (r *Resolver) cookieValue(req *http.Request) (string, bool) {
	c, err := req.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	return r.VerifyCookie(c.Value)
}

func (r *Resolver) mintCookie(w http.ResponseWriter) string {
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id + "." + r.sign(id),
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Resolve computes the identity for an HTTP request. ip should be the
// proxy-aware client IP (gin's ClientIP). userID is set when the request was
// authenticated. A missing or invalid visitor cookie is replaced silently.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request, ip string, userID *uint) Resolved {
	userAgent := req.UserAgent()
	if userAgent == "" {
		userAgent = "unknown"
	}
	fingerprint := r.Fingerprint(ip, userAgent)

	visitorID, ok := r.cookieValue(req)
	if !ok {
		// Authentication does not preclude later anonymous correlation, so
		// every browser gets a visitor cookie.
		visitorID = r.mintCookie(w)
	}

	if userID != nil {
		return Resolved{
			Type:            TypeAuthenticated,
			Identifier:      fmt.Sprintf("%d", *userID),
			UserID:          userID,
			VisitorID:       &visitorID,
			FingerprintHash: fingerprint,
			IPAddress:       ip,
			UserAgent:       userAgent,
		}
	}

	return Resolved{
		Type:            TypeVisitor,
		Identifier:      visitorID,
		VisitorID:       &visitorID,
		FingerprintHash: fingerprint,
		IPAddress:       ip,
		UserAgent:       userAgent,
	}
}

// ResolveDirect computes an identity without cookie access, for transports
// like the WebSocket handshake. Falls back to the fingerprint alone.
func (r *Resolver) ResolveDirect(ip, userAgent string, userID *uint) Resolved {
	if userAgent == "" {
		userAgent = "unknown"
	}
	fingerprint := r.Fingerprint(ip, userAgent)

	if userID != nil {
		return Resolved{
			Type:            TypeAuthenticated,
			Identifier:      fmt.Sprintf("%d", *userID),
			UserID:          userID,
			FingerprintHash: fingerprint,
			IPAddress:       ip,
			UserAgent:       userAgent,
		}
	}

	return Resolved{
		Type:            TypeAnonymous,
		Identifier:      fingerprint,
		FingerprintHash: fingerprint,
		IPAddress:       ip,
		UserAgent:       userAgent,
	}
}
