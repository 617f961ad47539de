package simdplan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelTokenStartsClear(t *testing.T) {
	tok := NewCancelToken()
	assert.False(t, tok.IsSet())
}

func TestCancelTokenArmAndClear(t *testing.T) {
	tok := NewCancelToken()
	tok.Arm()
	assert.True(t, tok.IsSet())
	tok.Clear()
	assert.False(t, tok.IsSet())
}

func TestCancelTokenRepeatedArmIsIdempotent(t *testing.T) {
	tok := NewCancelToken()
	tok.Arm()
	tok.Arm()
	assert.True(t, tok.IsSet())
}

func TestCancelTokenConcurrentUse(t *testing.T) {
	tok := NewCancelToken()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Arm()
			tok.IsSet()
		}()
	}
	wg.Wait()
	assert.True(t, tok.IsSet())
}
