// Package scroll decides when a chat view should follow new content.
//
// A view that the user has scrolled away from stays put while content
// streams in; returning to the bottom, or jumping to the latest message,
// resumes following.
package scroll

import "sync"

// Follower tracks whether a view is pinned to the bottom. It starts
// pinned. The zero value is not ready for use; call NewFollower.
type Follower struct {
	mu     sync.Mutex
	pinned bool
}

// NewFollower returns a pinned follower.
func NewFollower() *Follower {
	return &Follower{pinned: true}
}

// ContentChanged reports whether the view should scroll to the bottom
// after content grew.
func (f *Follower) ContentChanged() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pinned
}

// UserScrolled records a scroll the user made. Leaving the bottom
// unpins; arriving back at the bottom pins again.
func (f *Follower) UserScrolled(atBottom bool) {
	f.mu.Lock()
	f.pinned = atBottom
	f.mu.Unlock()
}

// Follow pins the view, as a "jump to latest" control does. The caller
// scrolls to the bottom.
func (f *Follower) Follow() {
	f.mu.Lock()
	f.pinned = true
	f.mu.Unlock()
}

// Pinned reports whether the view follows new content. A view that is
// not pinned should offer a way to jump to the latest message.
func (f *Follower) Pinned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pinned
}
