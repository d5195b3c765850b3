package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowAndReset(t *testing.T) {
	l := New(2, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow("a@b.com"))
	assert.True(t, l.Allow("a@b.com"))
	assert.False(t, l.Allow("a@b.com"))
	assert.Equal(t, 0, l.Remaining("a@b.com"))
	assert.True(t, l.Allow("other@b.com"))

	l.Reset("a@b.com")
	assert.Equal(t, 2, l.Remaining("a@b.com"))
	assert.True(t, l.Allow("a@b.com"))
}

func TestLimiter_WindowExpires(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()

	now := time.Now()
	l.now = func() time.Time { return now }
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	now = now.Add(2 * time.Minute)
	assert.True(t, l.Allow("k"))
}

func TestLimiter_StopTwice(t *testing.T) {
	l := New(1, time.Minute)
	l.Stop()
	l.Stop()
}

func TestEmailKey(t *testing.T) {
	assert.Equal(t, "ana@example.com", EmailKey("  Ana@Example.COM "))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/login", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}
