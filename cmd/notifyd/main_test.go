package main

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
)

func TestRunServeRejectsInvalidConfig(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")

	assert.Equal(t, 1, runServe())
}

func TestRunServeReturnsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	t.Setenv("REDIS_ADDR", addr)
	t.Setenv("HTTP_ADDR", "127.0.0.1:0")
	t.Setenv("LOG_LEVEL", "error")

	assert.Equal(t, 1, runServe())
}

func TestRunPublishAppendsEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())

	assert.Equal(t, 0, runPublish([]string{"user", "-user", "u9"}))
	entries, err := mr.Stream("notification:user-events")
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Equal(t, 1, runPublish([]string{"grades"}))
}

func TestRunTokenRequiresUser(t *testing.T) {
	assert.Equal(t, 1, runToken(nil))
	assert.Equal(t, 0, runToken([]string{"-user", "u1", "-admin"}))
}
