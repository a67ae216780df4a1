package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	perrors "github.com/p-blackswan/factory-agent/internal/errors"
	"github.com/p-blackswan/factory-agent/internal/retry"
)

// SlackAPI is the minimal Slack API surface needed by the notifier.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts notifications to a Slack channel. Delivery failures
// are logged and never reach the caller.
type SlackNotifier struct {
	api     SlackAPI
	channel string
	retry   retry.Config
	logger  zerolog.Logger
}

// NewSlackNotifier creates a notifier posting to channel.
func NewSlackNotifier(api SlackAPI, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:     api,
		channel: channel,
		retry:   retry.DefaultConfig(),
		logger:  logger.With().Str("component", "slack_notify").Logger(),
	}
}

// NewSlackNotifierFromToken creates a notifier with a real Slack client.
func NewSlackNotifierFromToken(token, channel string, logger zerolog.Logger) *SlackNotifier {
	return NewSlackNotifier(slack.New(token), channel, logger)
}

// SetRetryConfig overrides the retry policy (for testing).
func (s *SlackNotifier) SetRetryConfig(cfg retry.Config) {
	s.retry = cfg
}

// Info implements Notifier.
func (s *SlackNotifier) Info(ctx context.Context, msg string) {
	s.post(ctx, ":information_source: "+msg)
}

// Error implements Notifier.
func (s *SlackNotifier) Error(ctx context.Context, msg string) {
	s.post(ctx, ":x: "+msg)
}

func (s *SlackNotifier) post(ctx context.Context, text string) {
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
		return classifySlackError(err)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("channel", s.channel).Msg("failed to post notification")
	}
}

func classifySlackError(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return &perrors.RetryAfterError{After: rateErr.RetryAfter, Err: perrors.ErrRateLimit}
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return &perrors.APIError{Service: "slack", StatusCode: statusErr.Code, Message: statusErr.Status, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(perrors.ErrTimeout, err)
	}
	return err
}

// postTimeout bounds a single notification.
const postTimeout = 10 * time.Second

// Bounded wraps a notifier so each call gets its own deadline detached
// from cancellation of the caller.
func Bounded(n Notifier) Notifier {
	return bounded{n}
}

type bounded struct{ inner Notifier }

func (b bounded) Info(ctx context.Context, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postTimeout)
	defer cancel()
	b.inner.Info(ctx, msg)
}

func (b bounded) Error(ctx context.Context, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postTimeout)
	defer cancel()
	b.inner.Error(ctx, msg)
}
