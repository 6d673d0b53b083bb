package stream

import "sync"

// maxStreams bounds open streams across all clients.
const maxStreams = 200

// streamLimiter caps concurrent streams per client IP and in total.
type streamLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	open     int
	maxPerIP int
	maxOpen  int
}

func newStreamLimiter(maxPerIP int) *streamLimiter {
	return &streamLimiter{
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
		maxOpen:  maxStreams,
	}
}

// tryAcquire takes a slot for ip. The returned release must be called exactly
// once when the stream ends; ok is false when either cap is reached.
func (l *streamLimiter) tryAcquire(ip string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open >= l.maxOpen || l.perIP[ip] >= l.maxPerIP {
		return nil, false
	}
	l.perIP[ip]++
	l.open++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, true
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.open--
	if l.perIP[ip]--; l.perIP[ip] <= 0 {
		delete(l.perIP, ip)
	}
}

// active reports the open streams for ip.
func (l *streamLimiter) active(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}
