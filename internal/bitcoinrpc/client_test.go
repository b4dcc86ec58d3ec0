package bitcoinrpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	cfg := Config{URL: "http://node:8332", User: "u", Password: "p"}
	c := NewClient(cfg)
	require.NotNil(t, c)
	assert.Equal(t, cfg.URL, c.url)
	assert.Equal(t, 30*time.Second, c.client.Timeout)
}

func TestClientGetBlockCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "testuser", user)
		assert.Equal(t, "testpass", pass)
		w.Write([]byte(`{"jsonrpc":"1.0","id":1,"result":812345,"error":null}`))
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL, User: "testuser", Password: "testpass", Timeout: 5 * time.Second})
	count, err := c.GetBlockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(812345), count)
}

func TestClientGetBlockTemplate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"jsonrpc": "1.0", "id": 1,
			"result": {
				"version": 536870912,
				"previousblockhash": "0000000000000000000aaa",
				"transactions": [],
				"coinbasevalue": 625000000,
				"target": "0000000000000000ffff0000000000000000000000000000000000000000",
				"mintime": 1700000000,
				"curtime": 1700000100,
				"height": 812346,
				"bits": "170abcde",
				"rules": ["segwit"]
			},
			"error": null
		}`))
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL})
	tmpl, err := c.GetBlockTemplate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(812346), tmpl.Height)
	assert.Equal(t, uint64(625000000), tmpl.CoinbaseValue)
	assert.Contains(t, tmpl.Rules, "segwit")
}

func TestClientSubmitBlockRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"1.0","id":1,"result":"bad-txns-invalid","error":null}`))
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL})
	err := c.SubmitBlock(context.Background(), "deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad-txns-invalid")
}

func TestClientSubmitBlockAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"1.0","id":1,"result":null,"error":null}`))
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL})
	require.NoError(t, c.SubmitBlock(context.Background(), "deadbeef"))
}

func TestClientRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"1.0","id":1,"result":null,"error":{"code":-5,"message":"Block not found"}}`))
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL})
	_, err := c.GetBlockchainInfo(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Block not found")
}
