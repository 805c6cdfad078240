package inject

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/feedlens/relay/internal/feed"
)

// ContainerID identifies the single injected container element. Restore
// removes it as one atomic operation.
const ContainerID = "injected-tweets-container"

// DefaultAvatarURL fills in for tweets without a profile image.
const DefaultAvatarURL = "https://abs.twimg.com/sticky/default_profile_images/default_profile_normal.png"

// AttributionClass marks the mandatory link back to the original post. Every
// injected block carries it; it is what keeps injected content clearly
// sourced.
const AttributionClass = "view-on-x-link"

// Renderer synthesizes self-contained content blocks for a snapshot. Tweet
// text passes through a UGC sanitizer before it touches the page.
type Renderer struct {
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// NewRenderer creates a renderer using wall-clock time.
func NewRenderer() *Renderer {
	return &Renderer{
		sanitizer: bluemonday.UGCPolicy(),
		now:       time.Now,
	}
}

// WithClock fixes the renderer's clock; tests use this.
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	r.now = now
	return r
}

// Container renders the full injected container for a snapshot, blocks in
// snapshot order.
func (r *Renderer) Container(snap *feed.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div id=%q data-source=%q>`, ContainerID, html.EscapeString(snap.SourceUser))
	for _, t := range snap.Tweets {
		r.tweet(&b, t)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (r *Renderer) tweet(b *strings.Builder, t feed.Tweet) {
	b.WriteString(`<div data-testid="tweet" class="fake-tweet">`)

	avatar := t.ProfileImageURL
	if avatar == "" {
		avatar = DefaultAvatarURL
	}
	fmt.Fprintf(b, `<div class="tweet-avatar"><img src=%q alt=%q></div>`,
		html.EscapeString(avatar), html.EscapeString("@"+t.Username+" profile"))

	b.WriteString(`<div class="tweet-content">`)

	// Header: name, optional verified badge, handle, relative time.
	b.WriteString(`<div class="tweet-header">`)
	fmt.Fprintf(b, `<strong class="tweet-name">%s</strong>`, html.EscapeString(t.Name))
	if t.Verified {
		b.WriteString(`<span class="tweet-verified" aria-label="Verified account"></span>`)
	}
	fmt.Fprintf(b, `<span class="tweet-handle">@%s</span>`, html.EscapeString(t.Username))
	if ts, ok := ParseTimestamp(t.CreatedAt); ok {
		fmt.Fprintf(b, `<span class="tweet-time">%s</span>`, TimeAgo(ts, r.now()))
	}
	b.WriteString(`</div>`)

	fmt.Fprintf(b, `<div class="tweet-text">%s</div>`, r.text(t.Text))

	// Exactly one media element per URL, in original order.
	for _, raw := range t.Media {
		mediaURL := html.EscapeString(raw)
		if IsVideoURL(raw) {
			fmt.Fprintf(b, `<div class="tweet-media"><video controls muted playsinline preload="metadata" src=%q></video></div>`, mediaURL)
		} else {
			fmt.Fprintf(b, `<div class="tweet-media"><img src=%q></div>`, mediaURL)
		}
	}

	b.WriteString(`<div class="tweet-footer">`)
	fmt.Fprintf(b, `<span class="tweet-replies">%s</span>`, FormatCount(t.ReplyCount))
	fmt.Fprintf(b, `<span class="tweet-retweets">%s</span>`, FormatCount(t.RetweetCount))
	fmt.Fprintf(b, `<span class="tweet-likes">%s</span>`, FormatCount(t.LikeCount))
	fmt.Fprintf(b, `<span class="tweet-views">%s</span>`, FormatCount(t.Views))
	b.WriteString(`</div>`)

	// The attribution affordance is mandatory; a block without a working
	// permalink still links to the reconstructed status URL.
	fmt.Fprintf(b, `<a href=%q target="_blank" class=%q>View on X</a>`,
		html.EscapeString(r.permalink(t)), AttributionClass)

	b.WriteString(`</div></div>`)
}

func (r *Renderer) text(raw string) string {
	clean := r.sanitizer.Sanitize(raw)
	return strings.ReplaceAll(clean, "\n", "<br>")
}

func (r *Renderer) permalink(t feed.Tweet) string {
	if t.URL != "" {
		return t.URL
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", t.Username, t.ID)
}
