package loadbalancer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AffinityManager pins dashboard clients to one instance with a signed
// cookie. Snapshot fan-out is in-process, so a subscriber that lands on a
// different instance than the one ingesting its session would see nothing.
type AffinityManager struct {
	secretKey  []byte
	cookieName string
	maxAge     int
}

// NewAffinityManager creates a new affinity manager
func NewAffinityManager(secretKey string, cookieName string, maxAge int) *AffinityManager {
	return &AffinityManager{
		secretKey:  []byte(secretKey),
		cookieName: cookieName,
		maxAge:     maxAge,
	}
}

// Middleware returns gin middleware that assigns an affinity cookie to any
// client that does not yet carry a valid one.
func (m *AffinityManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := m.ClientID(c.Request)
		m.SetAffinityCookie(c.Writer, id)
		c.Next()
	}
}

// ClientID gets or creates an affinity ID for the request
func (m *AffinityManager) ClientID(r *http.Request) string {
	cookie, err := r.Cookie(m.cookieName)
	if err == nil && cookie.Value != "" {
		if m.validateCookie(cookie.Value) {
			return m.extractClientID(cookie.Value)
		}
	}

	return m.generateClientID(r)
}

// SetAffinityCookie sets the affinity cookie in the response
func (m *AffinityManager) SetAffinityCookie(w http.ResponseWriter, clientID string) {
	signedValue := m.signClientID(clientID)
	cookie := &http.Cookie{
		Name:     m.cookieName,
		Value:    signedValue,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   true, // Use HTTPS in production
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}

// generateClientID derives a stable ID from the request
func (m *AffinityManager) generateClientID(r *http.Request) string {
	ip := m.getClientIP(r)
	ua := r.Header.Get("User-Agent")

	data := fmt.Sprintf("%s:%s", ip, ua)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// signClientID signs a client ID with HMAC
func (m *AffinityManager) signClientID(clientID string) string {
	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(clientID))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s.%s", clientID, signature)
}

// validateCookie validates the cookie signature
func (m *AffinityManager) validateCookie(cookieValue string) bool {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return false
	}

	clientID := parts[0]
	expectedSignature := m.signClientID(clientID)
	return hmac.Equal([]byte(cookieValue), []byte(expectedSignature))
}

// extractClientID extracts the client ID from a signed cookie
func (m *AffinityManager) extractClientID(cookieValue string) string {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

// getClientIP gets the client IP address from the request
func (m *AffinityManager) getClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// ConsistentHash maps devices onto ingress instances
type ConsistentHash struct {
	instances []string
}

// NewConsistentHash creates a new consistent hash
func NewConsistentHash(instances []string) *ConsistentHash {
	return &ConsistentHash{
		instances: instances,
	}
}

// GetInstance gets the instance for a given key using consistent hashing
func (ch *ConsistentHash) GetInstance(key string) string {
	if len(ch.instances) == 0 {
		return ""
	}

	hash := sha256.Sum256([]byte(key))
	hashValue := uint64(hash[0])<<56 | uint64(hash[1])<<48 | uint64(hash[2])<<40 | uint64(hash[3])<<32 |
		uint64(hash[4])<<24 | uint64(hash[5])<<16 | uint64(hash[6])<<8 | uint64(hash[7])

	index := int(hashValue % uint64(len(ch.instances)))
	return ch.instances[index]
}
