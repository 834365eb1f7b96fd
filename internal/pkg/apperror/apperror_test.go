package apperror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{200, Internal},
		{429, RateLimit},
		{401, Authentication},
		{403, Authentication},
		{404, Client},
		{500, Transport},
		{503, Transport},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.status), "status %d", c.status)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(Transport, "boom")))
	assert.True(t, IsRetryable(New(RateLimit, "slow down")))
	assert.True(t, IsRetryable(New(TransientDB, "deadlock")))
	assert.False(t, IsRetryable(New(Client, "bad request")))
	assert.False(t, IsRetryable(New(Validation, "bad email")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(New(Cancelled, "stopped")))
	assert.False(t, IsCancelled(New(Internal, "oops")))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(Transport, cause, "fetching subscribers")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, Transport, KindOf(wrapped))
}

func TestWrapAPI(t *testing.T) {
	e := WrapAPI(Client, "GET", "/v1/subscribers", 404, errors.New("not found"))
	assert.Contains(t, e.Error(), "GET")
	assert.Contains(t, e.Error(), "/v1/subscribers")
	assert.Equal(t, 404, e.Status)
}
