package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// ReapIdle closes sessions that have received no commands for maxIdle and
// returns how many were closed.
func (s *NavigationService) ReapIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.RLock()
	var idle []string
	for id, a := range s.sessions {
		if a.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	s.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if err := s.CloseSession(id); err == nil {
			closed++
		}
	}
	return closed
}

// SessionReaper periodically closes sessions abandoned by their clients.
type SessionReaper struct {
	service  *NavigationService
	maxIdle  time.Duration
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewSessionReaper creates a reaper for service.
func NewSessionReaper(service *NavigationService, maxIdle, interval time.Duration) *SessionReaper {
	return &SessionReaper{
		service:  service,
		maxIdle:  maxIdle,
		interval: interval,
	}
}

// Start begins reaping in the background. Calling Start on a running reaper
// does nothing.
func (r *SessionReaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})

	log.Printf("Starting session reaper every %v (idle timeout %v)", r.interval, r.maxIdle)
	go r.reapLoop(ctx, r.stopChan)
}

// Stop halts the background loop.
func (r *SessionReaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopChan)
	log.Printf("Stopped session reaper")
}

// IsRunning reports whether the reaper loop is active.
func (r *SessionReaper) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *SessionReaper) reapLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Session reaper stopping due to context cancellation")
			return
		case <-stop:
			return
		case <-ticker.C:
			if n := r.service.ReapIdle(r.maxIdle); n > 0 {
				log.Printf("Session reaper closed %d idle sessions", n)
			}
		}
	}
}
