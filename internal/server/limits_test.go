package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/go-bpetok/internal/bpe"
	"github.com/example/go-bpetok/internal/server"
)

// ---------------------------------------------------------------------------
// request validation and limits
// ---------------------------------------------------------------------------

func TestEncode_OversizedTextRejectedAs413(t *testing.T) {
	h := newTestHandler(t, server.WithMaxTextBytes(10))

	wantError(t, post(h, "/encode", `{"text":"`+strings.Repeat("h", 11)+`"}`), http.StatusRequestEntityTooLarge)
}

func TestEncode_OversizedWordsRejectedAs413(t *testing.T) {
	h := newTestHandler(t, server.WithMaxTextBytes(4))

	wantError(t, post(h, "/encode", `{"words":["hel","lo"]}`), http.StatusRequestEntityTooLarge)
}

func TestEncode_TextAtExactLimitIsAccepted(t *testing.T) {
	h := newTestHandler(t, server.WithMaxTextBytes(5))

	rec := post(h, "/encode", `{"text":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 for exactly-limit text, got %d", rec.Code)
	}
}

func TestEncode_OversizedBodyRejectedAs413(t *testing.T) {
	h := newTestHandler(t, server.WithMaxTextBytes(1))

	// The padding is outside any field so only the body limit can catch it.
	body := `{"text":"h"` + strings.Repeat(" ", 8192) + `}`
	wantError(t, post(h, "/encode", body), http.StatusRequestEntityTooLarge)
}

func TestTokenize_OversizedWordRejectedAs413(t *testing.T) {
	h := newTestHandler(t, server.WithMaxTextBytes(3))

	wantError(t, post(h, "/tokenize", `{"word":"hello"}`), http.StatusRequestEntityTooLarge)
}

func TestDecode_TooManyIDsRejectedAs413(t *testing.T) {
	h := newTestHandler(t, server.WithMaxTextBytes(2))

	wantError(t, post(h, "/decode", `{"ids":[1,2,3]}`), http.StatusRequestEntityTooLarge)
}

func TestEncode_RequestTimeoutCancelsInFlight(t *testing.T) {
	tok := helloTokenizer(t, bpe.Config{})
	engine := &stubEngine{
		Tokenizer: tok,
		encode: func(ctx context.Context, _ string) ([]uint32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	h := server.NewHandler(engine, tok.Model(), server.WithRequestTimeout(20*time.Millisecond))

	wantError(t, post(h, "/encode", `{"text":"hello"}`), http.StatusGatewayTimeout)
}

func TestHandler_PanicIs500(t *testing.T) {
	tok := helloTokenizer(t, bpe.Config{})
	engine := &stubEngine{
		Tokenizer: tok,
		encode: func(context.Context, string) ([]uint32, error) {
			panic("boom")
		},
	}

	h := server.NewHandler(engine, tok.Model())

	wantError(t, post(h, "/encode", `{"text":"hello"}`), http.StatusInternalServerError)
}

// ---------------------------------------------------------------------------
// worker pool / concurrency throttling
// ---------------------------------------------------------------------------

func TestEncode_ConcurrencyThrottling(t *testing.T) {
	const workers = 2
	const totalRequests = 5

	var (
		mu         sync.Mutex
		peak       int
		current    int32
		releaseAll = make(chan struct{})
	)

	tok := helloTokenizer(t, bpe.Config{})
	engine := &stubEngine{
		Tokenizer: tok,
		encode: func(ctx context.Context, s string) ([]uint32, error) {
			n := int(atomic.AddInt32(&current, 1))
			defer atomic.AddInt32(&current, -1)

			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()

			<-releaseAll

			return tok.Encode(ctx, s)
		},
	}

	h := server.NewHandler(engine, tok.Model(), server.WithWorkers(workers))

	var wg sync.WaitGroup

	codes := make([]int, totalRequests)
	for i := range totalRequests {
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()

			codes[idx] = post(h, "/encode", `{"text":"hello"}`).Code
		}(i)
	}

	// Give goroutines time to enter the engine.
	time.Sleep(50 * time.Millisecond)
	close(releaseAll)
	wg.Wait()

	mu.Lock()
	got := peak
	mu.Unlock()

	if got > workers {
		t.Errorf("peak concurrency %d exceeded worker limit %d", got, workers)
	}

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: want 200, got %d", i, code)
		}
	}
}

func TestEncode_WaiterCancelledWhileThrottled(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	tok := helloTokenizer(t, bpe.Config{})
	engine := &stubEngine{
		Tokenizer: tok,
		encode: func(ctx context.Context, s string) ([]uint32, error) {
			close(started)
			<-release

			return tok.Encode(ctx, s)
		},
	}

	h := server.NewHandler(engine, tok.Model(), server.WithWorkers(1))

	done := make(chan struct{})

	// First request occupies the single worker slot.
	go func() {
		defer close(done)
		post(h, "/encode", `{"text":"hello"}`)
	}()

	<-started

	// Second request is blocked waiting for a worker; cancel its context.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/encode", strings.NewReader(`{"text":"hello"}`)).WithContext(ctx)
	h.ServeHTTP(rec, req)

	wantError(t, rec, http.StatusServiceUnavailable)

	close(release)
	<-done
}
