// Package session seals the admin identity into an authenticated, encrypted
// cookie. Nothing is stored server-side: the cookie is the session.
package session

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest accepted session secret.
const MinSecretLength = 32

const keyInfo = "portal-creditos session v1"

var (
	ErrWeakSecret = fmt.Errorf("session secret must be at least %d characters", MinSecretLength)
	ErrNoSession  = errors.New("no session cookie")
	ErrInvalid    = errors.New("session cookie is invalid")
	ErrExpired    = errors.New("session expired")
)

// Admin is the identity carried by the session cookie.
type Admin struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type payload struct {
	Admin    Admin     `json:"admin"`
	IssuedAt time.Time `json:"iat"`
}

// Codec seals and opens session tokens with XChaCha20-Poly1305.
type Codec struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

// NewCodec derives the cookie key from secret with HKDF-SHA256.
func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead, ttl: ttl, now: time.Now}, nil
}

// Seal encodes admin into an opaque URL-safe token.
func (c *Codec) Seal(admin Admin) (string, error) {
	plaintext, err := json.Marshal(payload{Admin: admin, IssuedAt: c.now().UTC()})
	if err != nil {
		return "", err
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open authenticates token and returns the admin it carries.
func (c *Codec) Open(token string) (Admin, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return Admin{}, ErrInvalid
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Admin{}, ErrInvalid
	}
	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil || p.Admin.ID == "" {
		return Admin{}, ErrInvalid
	}
	if c.ttl > 0 && c.now().After(p.IssuedAt.Add(c.ttl)) {
		return Admin{}, ErrExpired
	}
	return p.Admin, nil
}

// Manager reads and writes the session cookie on gin requests.
type Manager struct {
	codec  *Codec
	name   string
	secure bool
}

// NewManager returns a Manager writing cookies named name. secure sets the
// Secure attribute and should be true in production.
func NewManager(codec *Codec, name string, secure bool) *Manager {
	return &Manager{codec: codec, name: name, secure: secure}
}

// Issue seals admin and sets the session cookie on the response. The cookie
// carries no Max-Age so it ends with the browser session; the codec TTL still
// bounds the token.
func (m *Manager) Issue(c *gin.Context, admin Admin) error {
	token, err := m.codec.Seal(admin)
	if err != nil {
		return fmt.Errorf("sealing session: %w", err)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.name, token, 0, "/", "", m.secure, true)
	return nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.name, "", -1, "/", "", m.secure, true)
}

// Current returns the admin of the request's session cookie.
func (m *Manager) Current(c *gin.Context) (Admin, error) {
	token, err := c.Cookie(m.name)
	if err != nil || token == "" {
		return Admin{}, ErrNoSession
	}
	return m.codec.Open(token)
}
