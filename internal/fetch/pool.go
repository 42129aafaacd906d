// Package fetch runs the bounded worker pool that downloads segment bytes
// and reassembles results in request order.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/model"
)

type job struct {
	index   int
	request model.MediaRequest
}

type result struct {
	index int
	data  []byte
	err   error
}

// Pool downloads a batch of requests with a bounded worker count; FetchAll
// returns the results as a slice in request order.
type Pool struct {
	Client  *http.Client
	Workers int
}

func NewPool(client *http.Client, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Pool{Client: client, Workers: workers}
}

// FetchAll downloads every request and returns bytes in request order.
// The default pool size is 1 per track: sequential, so pipeline stages
// downstream (decrypt, concat) stay deterministic.
func (p *Pool) FetchAll(ctx context.Context, requests []model.MediaRequest) ([][]byte, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	jobs := make(chan job, len(requests))
	results := make(chan result, len(requests))

	for w := 0; w < p.Workers; w++ {
		go p.worker(ctx, jobs, results)
	}
	for i, r := range requests {
		jobs <- job{index: i, request: r}
	}
	close(jobs)

	out := make([][]byte, len(requests))
	for i := 0; i < len(requests); i++ {
		res := <-results
		if res.err != nil {
			return nil, res.err
		}
		out[res.index] = res.data
	}
	return out, nil
}

func (p *Pool) worker(ctx context.Context, jobs <-chan job, results chan<- result) {
	for j := range jobs {
		data, err := p.fetchOne(ctx, j.request)
		results <- result{index: j.index, data: data, err: err}
	}
}

func (p *Pool) fetchOne(ctx context.Context, r model.MediaRequest) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, dasherr.New(dasherr.Critical, dasherr.Network, dasherr.OperationAborted, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, dasherr.New(dasherr.Critical, dasherr.Network, dasherr.OperationAborted, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, dasherr.New(dasherr.Critical, dasherr.Network, dasherr.OperationAborted, nil)
	}
	return io.ReadAll(resp.Body)
}

// FetchOne is a convenience wrapper for single-segment fetches (manifest
// resolution, one-off range requests) that don't need the pool.
func FetchOne(ctx context.Context, client *http.Client, r model.MediaRequest) ([]byte, error) {
	p := &Pool{Client: client, Workers: 1}
	return p.fetchOne(ctx, r)
}
