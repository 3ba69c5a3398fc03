package webhooks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"type":"run.completed","data":{"profit":29}}`)
	now := time.Unix(1_700_000_000, 0)
	sig := Sign("s3cret", now.Unix(), body)
	assert.Regexp(t, `^v1=[0-9a-f]{64}$`, sig)

	assert.True(t, Verify("s3cret", now.Unix(), body, sig, now, time.Minute))
	assert.True(t, Verify("s3cret", now.Unix(), body, sig, now.Add(time.Hour), 0))
	assert.False(t, Verify("other", now.Unix(), body, sig, now, time.Minute))
	assert.False(t, Verify("s3cret", now.Unix()+1, body, sig, now, time.Minute))
	assert.False(t, Verify("s3cret", now.Unix(), []byte(`{}`), sig, now, time.Minute))
	assert.False(t, Verify("s3cret", now.Unix(), body, sig, now.Add(10*time.Minute), time.Minute))
	assert.False(t, Verify("s3cret", now.Unix(), body, sig[len("v1="):], now, time.Minute))
	assert.False(t, Verify("s3cret", now.Unix(), body, "v1=zz", now, time.Minute))
}
