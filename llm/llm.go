// Package llm talks to chat-completion services that generate answers.
package llm

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client generates a reply to a conversation. ChatStream calls onToken for
// every fragment as it arrives and stops early when onToken returns an error.
type Client interface {
	Chat(ctx context.Context, msgs []Message) (string, error)
	ChatStream(ctx context.Context, msgs []Message, onToken func(string) error) error
}

const maxLineSize = 1 << 20

func newLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return s
}

// newHTTPClients returns a client whose timeout bounds the whole exchange and
// one for streams, where the timeout only bounds the wait for response
// headers. A streamed reply is bounded by the caller's context.
func newHTTPClients(timeout time.Duration) (*http.Client, *http.Client) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	return &http.Client{Timeout: timeout}, &http.Client{Transport: transport}
}
