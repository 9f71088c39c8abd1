package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// maxAuthAttempts failed signatures close the connection.
const maxAuthAttempts = 3

// AuthHandler runs challenge-response authentication against a shared secret.
// Signatures cover the client id as well as the challenge, so a signature
// captured on one connection cannot authenticate another session.
type AuthHandler struct {
	secret []byte
}

// NewAuthHandler creates a handler for sharedSecret.
func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{secret: []byte(sharedSecret)}
}

// GenerateChallenge returns 32 random bytes, hex encoded.
func (a *AuthHandler) GenerateChallenge() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Sign returns hex(HMAC-SHA256(secret, clientID + ":" + challenge)).
func (a *AuthHandler) Sign(clientID, challenge string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(clientID))
	mac.Write([]byte{':'})
	mac.Write([]byte(challenge))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature answers challenge for clientID.
func (a *AuthHandler) VerifySignature(clientID, challenge, signature string) bool {
	return subtle.ConstantTimeCompare([]byte(a.Sign(clientID, challenge)), []byte(signature)) == 1
}

// VerifySecret compares a plain secret, as sent on single-shot HTTP requests.
func (a *AuthHandler) VerifySecret(secret string) bool {
	return subtle.ConstantTimeCompare(a.secret, []byte(secret)) == 1
}

// HandleAuthResponse checks a client's answer to its pending challenge and
// moves the client to the authenticated state on success. A challenge is
// single use: success clears it.
func (a *AuthHandler) HandleAuthResponse(client *Client, signature string) AuthResult {
	fail := func(msg string) AuthResult {
		return AuthResult{Event: "auth.failure", Message: msg}
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	if client.Challenge == "" {
		return fail("No challenge found")
	}
	if !a.VerifySignature(client.ID, client.Challenge, signature) {
		client.AuthAttempts++
		if client.AuthAttempts >= maxAuthAttempts {
			return fail("Too many failed attempts")
		}
		return fail("Invalid signature")
	}

	client.Authenticated = true
	client.State = StateAuthenticated
	client.AuthAttempts = 0
	client.Challenge = ""

	return AuthResult{Event: "auth.success", Success: true, ClientID: client.ID}
}
