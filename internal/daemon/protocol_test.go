package daemon

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusesearch/internal/search"
)

func TestSearchParams_Validate(t *testing.T) {
	tests := []struct {
		name      string
		params    SearchParams
		wantErr   bool
		wantLimit int
	}{
		{"valid", SearchParams{Query: "retry", Limit: 5}, false, 5},
		{"empty query", SearchParams{}, true, 0},
		{"blank query", SearchParams{Query: " \t"}, true, 0},
		{"negative limit uses default", SearchParams{Query: "retry", Limit: -3}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.params
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, p.Limit)
		})
	}
}

func TestSearchParams_JSON(t *testing.T) {
	// Given: params with backends and a timeout
	p := SearchParams{
		Query:    "retry policy",
		Backends: []search.MatchType{search.MatchSemantic},
		Timeout:  time.Second,
	}

	// When: encoding
	data, err := json.Marshal(p)
	require.NoError(t, err)

	// Then: backends travel by name and zero fields are omitted
	assert.JSONEq(t, `{"query":"retry policy","backends":["semantic"],"timeout_ns":1000000000}`, string(data))
}

func TestNewSuccessResponse(t *testing.T) {
	// When: wrapping a result
	resp := NewSuccessResponse("req-1", PingResult{Pong: true})

	// Then: it is encoded in place
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "req-1", resp.ID)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"pong":true}`, string(resp.Result))
}

func TestNewSuccessResponse_Unencodable(t *testing.T) {
	// When: the result cannot be encoded
	resp := NewSuccessResponse("req-2", make(chan int))

	// Then: an internal error is returned instead
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("req-3", ErrCodeMethodNotFound, "method not found: x")

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "method not found: x (code: -32601)", resp.Error.Error())
	assert.Empty(t, resp.Result)
}
