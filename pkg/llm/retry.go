package llm

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/loganventer/loganventerprofile-sub000/pkg/clients"
)

const maxRetries = 3

var retryExecutor = clients.NewHTTPExecutor(clients.HTTPExecutorConfig{
	MaxRetries:  maxRetries,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    2 * time.Second,
	ShouldRetry: clients.DefaultShouldRetry,
})

// doWithRetry sends the request produced by build, retrying transport errors,
// 429 and 5xx responses. build is invoked once per attempt so request bodies are
// fresh; bodies of discarded attempts are drained and closed.
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	var previous *http.Response
	release := func() {
		if previous != nil {
			_, _ = io.Copy(io.Discard, previous.Body)
			_ = previous.Body.Close()
			previous = nil
		}
	}

	resp, err := clients.ExecuteHTTP(ctx, retryExecutor, func() (*http.Response, error) {
		release()
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		previous = resp
		return resp, nil
	})
	if err != nil {
		release()
		return nil, err
	}
	return resp, nil
}
