package popup

import (
	"sync"
	"time"
)

// Notice TTLs. Errors linger longer than confirmations so the user has
// time to read them.
const (
	ErrorNoticeTTL   = 5 * time.Second
	SuccessNoticeTTL = 3 * time.Second
)

// NoticeKind distinguishes banner styling.
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeSuccess NoticeKind = "success"
)

// Notice is a transient banner shown above the popup's active view.
type Notice struct {
	Kind    NoticeKind
	Text    string
	Expires time.Time
}

// NoticeCenter holds the popup's single banner slot and its loading flag.
// The loading indicator is mutually exclusive with the views: while a
// network operation is in flight the popup shows neither panel.
type NoticeCenter struct {
	mu      sync.Mutex
	current *Notice
	loading bool
	now     func() time.Time
}

// NewNoticeCenter creates a notice center using wall-clock time.
func NewNoticeCenter() *NoticeCenter {
	return &NoticeCenter{now: time.Now}
}

// WithClock fixes the center's clock; tests use this.
func (n *NoticeCenter) WithClock(now func() time.Time) *NoticeCenter {
	n.now = now
	return n
}

// Error replaces the banner with an error notice.
func (n *NoticeCenter) Error(text string) {
	n.set(NoticeError, text, ErrorNoticeTTL)
}

// Success replaces the banner with a success notice.
func (n *NoticeCenter) Success(text string) {
	n.set(NoticeSuccess, text, SuccessNoticeTTL)
}

// SetLoading toggles the loading indicator.
func (n *NoticeCenter) SetLoading(on bool) {
	n.mu.Lock()
	n.loading = on
	n.mu.Unlock()
}

// Loading reports whether a network operation is in flight.
func (n *NoticeCenter) Loading() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loading
}

// Current returns the live banner, or nil once it has expired. Expiry is
// evaluated lazily on read; there is no background timer to leak.
func (n *NoticeCenter) Current() *Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return nil
	}
	if n.now().After(n.current.Expires) {
		n.current = nil
		return nil
	}
	notice := *n.current
	return &notice
}

// Clear drops the banner immediately.
func (n *NoticeCenter) Clear() {
	n.mu.Lock()
	n.current = nil
	n.mu.Unlock()
}

func (n *NoticeCenter) set(kind NoticeKind, text string, ttl time.Duration) {
	n.mu.Lock()
	n.current = &Notice{Kind: kind, Text: text, Expires: n.now().Add(ttl)}
	n.mu.Unlock()
}
