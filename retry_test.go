package lattice_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lattice "github.com/aretw0/lattice"
	"github.com/aretw0/lattice/pkg/adapters/memory"
	"github.com/aretw0/lattice/pkg/domain"
)

func TestRetry_Success(t *testing.T) {
	c, _ := newTestConn(t)

	calls := 0
	v, err := lattice.Retry(c, "fetch", func() (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestRetry_ConnectionLossConsumesAttempt(t *testing.T) {
	c, _ := newTestConn(t)

	calls := 0
	v, err := lattice.Retry(c, "fetch", func() (string, error) {
		calls++
		if calls < 3 {
			return "", domain.ErrConnectionLoss
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestRetry_OtherErrorsReturnImmediately(t *testing.T) {
	c, _ := newTestConn(t)

	boom := errors.New("boom")
	calls := 0
	_, err := lattice.Retry(c, "fetch", func() (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustedWithoutConnectivity(t *testing.T) {
	// Never started, so connectivity never comes and every attempt is
	// consumed by the wait.
	coord := memory.New()
	c := lattice.New(coord, 1, 2, "bs", "host1")

	calls := 0
	_, err := lattice.Retry(c, "fetch", func() (int, error) {
		calls++
		return 0, nil
	},
		lattice.WithRetryTimeout(5*time.Millisecond),
		lattice.WithMaxRetries(2),
	)
	var limitErr *domain.RetryLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "fetch", limitErr.Desc)
	// Two retries means three attempts in total.
	assert.Equal(t, 3, limitErr.Attempts)
	assert.Equal(t, 0, calls)
}

func TestRetry_ZeroRetriesMeansSingleAttempt(t *testing.T) {
	c, _ := newTestConn(t)

	calls := 0
	_, err := lattice.Retry(c, "fetch", func() (int, error) {
		calls++
		return 0, domain.ErrConnectionLoss
	}, lattice.WithMaxRetries(0))

	var limitErr *domain.RetryLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 1, limitErr.Attempts)
	assert.Equal(t, 1, calls)
}

func TestRetry_UnboundedOutlivesDefaultBudget(t *testing.T) {
	c, _ := newTestConn(t)

	calls := 0
	v, err := lattice.Retry(c, "fetch", func() (int, error) {
		calls++
		if calls <= lattice.DefaultMaxRetries+3 {
			return 0, domain.ErrConnectionLoss
		}
		return 7, nil
	}, lattice.WithUnboundedRetries())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, lattice.DefaultMaxRetries+4, calls)
}

func TestConnRetry_ErrorForm(t *testing.T) {
	c, _ := newTestConn(t)

	calls := 0
	err := c.Retry("touch", func() error {
		calls++
		if calls == 1 {
			return domain.ErrConnectionLoss
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
