package qadoc_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	err := qadoc.Errorf(qadoc.KindCrawlTimeout, "page took too long")
	require.Equal(t, qadoc.KindCrawlTimeout, qadoc.KindOf(err))

	wrapped := fmt.Errorf("attempt 2: %w", err)
	require.Equal(t, qadoc.KindCrawlTimeout, qadoc.KindOf(wrapped))

	require.Equal(t, qadoc.KindInternal, qadoc.KindOf(errors.New("plain")))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	te := qadoc.Normalize(qadoc.Errorf(qadoc.KindCrawlAuth, "credentials rejected"))
	require.Equal(t, qadoc.KindCrawlAuth, te.Kind)
	require.Equal(t, "credentials rejected", te.Message)

	te = qadoc.Normalize(errors.New("disk full"))
	require.Equal(t, qadoc.KindInternal, te.Kind)
	require.Equal(t, "disk full", te.Message)
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	retryable := []qadoc.ErrorKind{
		qadoc.KindCrawlTimeout,
		qadoc.KindCrawlNavigation,
		qadoc.KindAnalysisProvider,
		qadoc.KindRateLimitTimeout,
	}
	for _, kind := range retryable {
		require.True(t, qadoc.Retryable(kind), "kind %s", kind)
	}

	fatal := []qadoc.ErrorKind{
		qadoc.KindCrawlAuth,
		qadoc.KindAnalysisParse,
		qadoc.KindInternal,
	}
	for _, kind := range fatal {
		require.False(t, qadoc.Retryable(kind), "kind %s", kind)
	}
}

func TestClassifyAttempt(t *testing.T) {
	t.Parallel()

	require.Equal(t, qadoc.AttemptSucceeded, qadoc.ClassifyAttempt(nil))
	require.Equal(t, qadoc.AttemptRetryable, qadoc.ClassifyAttempt(qadoc.Errorf(qadoc.KindAnalysisProvider, "503")))
	require.Equal(t, qadoc.AttemptFatal, qadoc.ClassifyAttempt(qadoc.Errorf(qadoc.KindAnalysisParse, "bad schema")))
	require.Equal(t, qadoc.AttemptFatal, qadoc.ClassifyAttempt(errors.New("unknown")))
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []qadoc.JobStatus{
		qadoc.JobStatusCompleted,
		qadoc.JobStatusCompletedWithErrors,
		qadoc.JobStatusFailed,
		qadoc.JobStatusCancelled,
	} {
		require.True(t, s.Terminal(), "status %s", s)
	}
	require.False(t, qadoc.JobStatusPending.Terminal())
	require.False(t, qadoc.JobStatusRunning.Terminal())

	for _, s := range []qadoc.TaskStatus{
		qadoc.TaskStatusSucceeded,
		qadoc.TaskStatusFailed,
		qadoc.TaskStatusCancelled,
	} {
		require.True(t, s.Terminal(), "status %s", s)
	}
	require.False(t, qadoc.TaskStatusQueued.Terminal())
	require.False(t, qadoc.TaskStatusRunning.Terminal())
	require.False(t, qadoc.TaskStatusRetrying.Terminal())
}
