package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/factory-agent/internal/errors"
	"github.com/p-blackswan/factory-agent/internal/retry"
	"github.com/p-blackswan/factory-agent/internal/session"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))
	ctx := session.WithID(context.Background(), "s-1")

	n.Info(ctx, "Project /projects/api successfully cloned.")
	n.Error(context.Background(), "Couldn't clone")

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"session_id":"s-1"`)
	assert.Contains(t, out, "successfully cloned")
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"user_visible":true`)
}

type recorder struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (r *recorder) Info(ctx context.Context, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, msg)
}

func (r *recorder) Error(ctx context.Context, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}

	m.Info(context.Background(), "hello")
	m.Error(context.Background(), "oops")

	for _, r := range []*recorder{a, b} {
		assert.Equal(t, []string{"hello"}, r.infos)
		assert.Equal(t, []string{"oops"}, r.errors)
	}
}

type fakeSlack struct {
	channels []string
	errs     []error
	calls    int
}

func (f *fakeSlack) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.calls++
	f.channels = append(f.channels, channelID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", "", err
	}
	return channelID, "1700000000.000100", nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestSlackNotifier_Posts(t *testing.T) {
	api := &fakeSlack{}
	n := NewSlackNotifier(api, "C123", zerolog.Nop())

	n.Info(context.Background(), "cloning")
	n.Error(context.Background(), "failed")

	assert.Equal(t, 2, api.calls)
	assert.Equal(t, []string{"C123", "C123"}, api.channels)
}

func TestSlackNotifier_RetriesRateLimit(t *testing.T) {
	api := &fakeSlack{errs: []error{&slack.RateLimitedError{RetryAfter: time.Millisecond}}}
	n := NewSlackNotifier(api, "C123", zerolog.Nop())
	n.SetRetryConfig(fastRetry())

	n.Info(context.Background(), "cloning")
	assert.Equal(t, 2, api.calls)
}

func TestSlackNotifier_NonRetryableSwallowed(t *testing.T) {
	api := &fakeSlack{errs: []error{errors.New("channel_not_found")}}
	n := NewSlackNotifier(api, "C404", zerolog.Nop())
	n.SetRetryConfig(fastRetry())

	assert.NotPanics(t, func() { n.Error(context.Background(), "failed") })
	assert.Equal(t, 1, api.calls)
}

func TestClassifySlackError(t *testing.T) {
	assert.NoError(t, classifySlackError(nil))

	err := classifySlackError(&slack.RateLimitedError{RetryAfter: 2 * time.Second})
	assert.ErrorIs(t, err, perrors.ErrRateLimit)
	assert.Equal(t, 2*time.Second, perrors.RetryAfter(err))

	err = classifySlackError(slack.StatusCodeError{Code: 503, Status: "Service Unavailable"})
	assert.True(t, perrors.IsRetryable(err))

	err = classifySlackError(slack.StatusCodeError{Code: 403, Status: "Forbidden"})
	assert.False(t, perrors.IsRetryable(err))

	err = classifySlackError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, perrors.ErrTimeout)
}

type ctxRecorder struct {
	err      error
	deadline bool
}

func (c *ctxRecorder) Info(ctx context.Context, msg string) {
	c.err = ctx.Err()
	_, c.deadline = ctx.Deadline()
}

func (c *ctxRecorder) Error(ctx context.Context, msg string) { c.Info(ctx, msg) }

func TestBounded_DetachesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &ctxRecorder{}
	Bounded(inner).Info(ctx, "closing")

	require.NoError(t, inner.err)
	assert.True(t, inner.deadline)
}
