package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nutriplan/internal/models"
)

// Chunk bounds for attachment_reader; fetchBodyLimit caps direct URL
// fetches so one page cannot blow up a tool result.
const (
	attachmentChunkSizeDefault = 1000
	attachmentChunkSizeMin     = 500
	attachmentChunkSizeMax     = 2000
	attachmentRateLimit        = 3
	attachmentRateWindow       = time.Minute
	webSearchHTTPTimeout       = 10 * time.Second
	fetchBodyLimit             = 512 << 10
)

type attachmentContextKey struct{}
type toolSessionContextKey struct{}

// toolRateLimiter is a sliding-window counter keyed by caller.
type toolRateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  map[string][]time.Time
}

func newToolRateLimiter(limit int, window time.Duration) *toolRateLimiter {
	return &toolRateLimiter{limit: limit, window: window, calls: make(map[string][]time.Time)}
}

func (l *toolRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	kept := l.calls[key][:0]
	for _, at := range l.calls[key] {
		if now.Sub(at) < l.window {
			kept = append(kept, at)
		}
	}
	if len(kept) >= l.limit {
		l.calls[key] = kept
		return false
	}
	l.calls[key] = append(kept, now)
	return true
}

// WithAttachments exposes the session's live uploads to attachment_reader.
// The slice is copied so tool calls never see rows the caller later
// mutates.
func WithAttachments(ctx context.Context, files []*models.Attachment) context.Context {
	copied := make([]*models.Attachment, 0, len(files))
	for _, f := range files {
		if f == nil {
			continue
		}
		c := *f
		copied = append(copied, &c)
	}
	if len(copied) == 0 {
		return ctx
	}
	return context.WithValue(ctx, attachmentContextKey{}, copied)
}

func AttachmentsFromContext(ctx context.Context) []*models.Attachment {
	files, _ := ctx.Value(attachmentContextKey{}).([]*models.Attachment)
	return files
}

type toolSession struct {
	userID    int64
	sessionID int64
}

// WithToolSession tags the context with the caller identity so tool rate
// limits apply per user and session.
func WithToolSession(ctx context.Context, userID, sessionID int64) context.Context {
	if userID <= 0 || sessionID <= 0 {
		return ctx
	}
	return context.WithValue(ctx, toolSessionContextKey{}, toolSession{userID: userID, sessionID: sessionID})
}

func ToolSessionFromContext(ctx context.Context) (int64, int64, bool) {
	ts, ok := ctx.Value(toolSessionContextKey{}).(toolSession)
	if !ok {
		return 0, 0, false
	}
	return ts.userID, ts.sessionID, true
}

// fetchURL pulls a page body when the model hands nutrition_search a URL
// instead of a query.
func (w *nutritionSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("not a fetchable url: %q", target)
	}
	if w.httpClient == nil {
		w.httpClient = &http.Client{Timeout: webSearchHTTPTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "NutriPlan-Search/1.0")
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: %s", parsed.Host, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(strings.TrimSpace(input))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
