// Package v1 implements the Stratum v1 wire format: newline-delimited
// JSON-RPC requests, responses, and notifications (spec.md §4.1).
package v1

import (
	"encoding/json"
	"fmt"
)

// Request is a client-to-server Stratum v1 call (mining.subscribe,
// mining.authorize, mining.submit, ...).
type Request struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response answers a Request by ID.
type Response struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result"`
	Error  interface{} `json:"error"`
}

// Notification is a server-to-client push with no ID (mining.notify,
// mining.set_difficulty, ...).
type Notification struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// ParseRequest decodes one line of input into a Request.
func ParseRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("v1: parse request: %w", err)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("v1: request missing method field")
	}
	return &req, nil
}

// Known v1 method names (spec.md §4.1).
const (
	MethodSubscribe       = "mining.subscribe"
	MethodAuthorize       = "mining.authorize"
	MethodSubmit          = "mining.submit"
	MethodNotify          = "mining.notify"
	MethodSetDifficulty   = "mining.set_difficulty"
	MethodExtranonceSub   = "mining.extranonce.subscribe"
	MethodSuggestDifficulty = "mining.suggest_difficulty"
)

// Standard Stratum v1 error codes (spec.md §4.1).
const (
	ErrCodeUnknown          = 20
	ErrCodeJobNotFound      = 21
	ErrCodeDuplicateShare   = 22
	ErrCodeLowDifficulty    = 23
	ErrCodeUnauthorized     = 24
	ErrCodeNotSubscribed    = 25
)

// NewSubscribeResponse answers mining.subscribe with the subscription
// list, extranonce1, and extranonce2 size.
func NewSubscribeResponse(id interface{}, subscriptionID, extranonce1 string, extranonce2Size int) *Response {
	return &Response{
		ID: id,
		Result: []interface{}{
			[]interface{}{[]interface{}{MethodNotify, subscriptionID}},
			extranonce1,
			extranonce2Size,
		},
	}
}

// NewAuthorizeResponse answers mining.authorize.
func NewAuthorizeResponse(id interface{}, authorized bool) *Response {
	return &Response{ID: id, Result: authorized}
}

// NewSubmitResponse answers mining.submit.
func NewSubmitResponse(id interface{}, accepted bool) *Response {
	return &Response{ID: id, Result: accepted}
}

// NewErrorResponse builds a Stratum v1 [code, message, traceback] error
// response.
func NewErrorResponse(id interface{}, code int, message string) *Response {
	return &Response{ID: id, Error: []interface{}{code, message, nil}}
}

// NewNotifyNotification builds a mining.notify push for a new job.
func NewNotifyNotification(jobID, prevHash, coinbase1, coinbase2 string, merkleBranch []string, version, bits, ntime string, cleanJobs bool) *Notification {
	return &Notification{
		Method: MethodNotify,
		Params: []interface{}{
			jobID, prevHash, coinbase1, coinbase2, merkleBranch, version, bits, ntime, cleanJobs,
		},
	}
}

// NewSetDifficultyNotification builds a mining.set_difficulty push.
func NewSetDifficultyNotification(difficulty float64) *Notification {
	return &Notification{Method: MethodSetDifficulty, Params: []interface{}{difficulty}}
}

// MarshalLine serialises v into a single newline-terminated JSON line,
// the unit the codec reads and writes (spec.md §4.1 framing).
func MarshalLine(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("v1: marshal: %w", err)
	}
	return append(data, '\n'), nil
}
