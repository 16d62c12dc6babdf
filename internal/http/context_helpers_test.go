package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Equal(t, ctx, SetRequestIDInContext(ctx, ""))

	ctx = SetRequestIDInContext(ctx, "abc")
	assert.Equal(t, "abc", RequestIDFromContext(ctx))
}
