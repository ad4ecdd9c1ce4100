package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type RetryExecutorSuite struct {
	suite.Suite
}

func TestRetryExecutorSuite(t *testing.T) {
	suite.Run(t, new(RetryExecutorSuite))
}

func (s *RetryExecutorSuite) fastExecutor(maxAttempts int) Executor {
	ex := New(maxAttempts)
	ex.BackoffUnit = time.Microsecond
	return ex
}

func (s *RetryExecutorSuite) TestSucceedsFirstAttempt() {
	calls := 0
	result, attempts, err := Do(context.Background(), s.fastExecutor(3), "op", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	s.Require().NoError(err)
	s.Equal("ok", result)
	s.Equal(1, attempts)
	s.Equal(1, calls)
}

func (s *RetryExecutorSuite) TestFailsTwiceThenSucceeds() {
	calls := 0
	result, attempts, err := Do(context.Background(), s.fastExecutor(3), "op", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	s.Require().NoError(err)
	s.Equal("ok", result)
	s.Equal(3, attempts)
	s.Equal(3, calls)
}

func (s *RetryExecutorSuite) TestExhaustsAttemptBudget() {
	calls := 0
	_, attempts, err := Do(context.Background(), s.fastExecutor(3), "op", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("always fails")
	})

	s.Require().Error(err)
	s.ErrorIs(err, ErrRetriesExhausted)
	s.Contains(err.Error(), "always fails")
	s.Equal(3, attempts)
	s.Equal(3, calls)
}

func (s *RetryExecutorSuite) TestNonRetryableErrorStopsEarly() {
	fatal := errors.New("bad request")
	ex := s.fastExecutor(5)
	ex.RetryIf = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	_, attempts, err := Do(context.Background(), ex, "op", func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	s.Require().Error(err)
	s.NotErrorIs(err, ErrRetriesExhausted)
	s.Equal(1, attempts)
	s.Equal(1, calls)
}

func (s *RetryExecutorSuite) TestContextCancellationStopsRetryLoop() {
	ctx, cancel := context.WithCancel(context.Background())

	ex := New(5)
	ex.BackoffUnit = 50 * time.Millisecond

	calls := 0
	_, _, err := Do(ctx, ex, "op", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})

	s.Require().Error(err)
	s.ErrorIs(err, context.Canceled)
	s.Equal(1, calls)
}

func (s *RetryExecutorSuite) TestBackoffGrowsExponentially() {
	first := backoff(1, time.Second, 0)
	second := backoff(2, time.Second, 0)
	third := backoff(3, time.Second, 0)

	s.Equal(2*time.Second, first)
	s.Equal(4*time.Second, second)
	s.Equal(8*time.Second, third)
}

func (s *RetryExecutorSuite) TestBackoffAddsJitterFraction() {
	withJitter := backoff(1, time.Second, 0.5)
	s.Equal(2500*time.Millisecond, withJitter)
}

func (s *RetryExecutorSuite) TestDoFuncCountsAttempts() {
	calls := 0
	attempts, err := DoFunc(context.Background(), s.fastExecutor(2), "op", func(context.Context) error {
		calls++
		return errors.New("nope")
	})

	s.Require().Error(err)
	s.Equal(2, attempts)
	s.Equal(2, calls)
}
