package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-bpetok/internal/bpe"
	"github.com/example/go-bpetok/internal/config"
	"github.com/example/go-bpetok/internal/text"
	"github.com/example/go-bpetok/internal/tokenizer"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Engine encodes and decodes text.
type Engine interface {
	Encode(ctx context.Context, text string) ([]uint32, error)
	EncodeWords(ctx context.Context, words []string) ([]uint32, error)
	Tokens(text string) (string, []bpe.Token, error)
	TokenizeWord(word string) ([]bpe.Token, error)
	Decode(ids []uint32) (string, error)
}

// Vocab answers vocabulary queries.
type Vocab interface {
	VocabSize() int
	TokenToID(token string) (uint32, bool)
	IDToToken(id uint32) (string, bool)
	Config() bpe.Config
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   65536,
		workers:        4,
		requestTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum request text size in bytes. For word
// lists the sum of word lengths counts; for decode requests, the number of
// ids.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent encode/decode calls.
// Zero or less disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	engine Engine
	vocab  Vocab
	opts   options
	sem    chan struct{} // semaphore for worker pool
	log    *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /vocab, and
// POST /encode, /tokenize and /decode.
func NewHandler(engine Engine, vocab Vocab, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		engine: engine,
		vocab:  vocab,
		opts:   opts,
		log:    opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/vocab", h.handleVocab)
	mux.HandleFunc("/encode", h.handleEncode)
	mux.HandleFunc("/tokenize", h.handleTokenize)
	mux.HandleFunc("/decode", h.handleDecode)

	return h.recoverer(mux)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

// recoverer turns a handler panic into a 500 response.
func (h *handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				h.log.ErrorContext(r.Context(), "handler panic",
					slog.String("path", r.URL.Path),
					slog.Any("panic", v),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type vocabResponse struct {
	Size                    int    `json:"size"`
	UnkToken                string `json:"unk_token,omitempty"`
	ContinuingSubwordPrefix string `json:"continuing_subword_prefix,omitempty"`
	EndOfWordSuffix         string `json:"end_of_word_suffix,omitempty"`
	FuseUnk                 bool   `json:"fuse_unk"`
	ByteFallback            bool   `json:"byte_fallback"`
	IgnoreMerges            bool   `json:"ignore_merges"`
}

type lookupResponse struct {
	Token string `json:"token"`
	ID    uint32 `json:"id"`
}

// handleVocab serves the model summary, or a single lookup with ?token= or ?id=.
func (h *handler) handleVocab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()

	switch {
	case q.Has("token"):
		token := q.Get("token")

		id, ok := h.vocab.TokenToID(token)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("token %q not in vocabulary", token))
			return
		}

		writeJSON(w, http.StatusOK, lookupResponse{Token: token, ID: id})
	case q.Has("id"):
		n, err := strconv.ParseUint(q.Get("id"), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id: "+err.Error())
			return
		}

		token, ok := h.vocab.IDToToken(uint32(n))
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("id %d not in vocabulary", n))
			return
		}

		writeJSON(w, http.StatusOK, lookupResponse{Token: token, ID: uint32(n)})
	default:
		cfg := h.vocab.Config()
		writeJSON(w, http.StatusOK, vocabResponse{
			Size:                    h.vocab.VocabSize(),
			UnkToken:                cfg.UnkToken,
			ContinuingSubwordPrefix: cfg.ContinuingSubwordPrefix,
			EndOfWordSuffix:         cfg.EndOfWordSuffix,
			FuseUnk:                 cfg.FuseUnk,
			ByteFallback:            cfg.ByteFallback,
			IgnoreMerges:            cfg.IgnoreMerges,
		})
	}
}

type encodeRequest struct {
	Text       string   `json:"text"`
	Words      []string `json:"words"`
	WithTokens bool     `json:"with_tokens"`
}

type encodeResponse struct {
	IDs        []uint32    `json:"ids"`
	Tokens     []bpe.Token `json:"tokens,omitempty"`
	Normalized string      `json:"normalized,omitempty"`
}

func (h *handler) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	size := len(req.Text)
	for _, word := range req.Words {
		size += len(word)
	}

	switch {
	case req.Text == "" && req.Words == nil:
		writeError(w, http.StatusBadRequest, "text or words field is required")
		return
	case req.Text != "" && req.Words != nil:
		writeError(w, http.StatusBadRequest, "text and words are mutually exclusive")
		return
	case req.WithTokens && req.Words != nil:
		writeError(w, http.StatusBadRequest, "with_tokens requires text")
		return
	case size > h.opts.maxTextBytes:
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	// Apply per-request timeout.
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()

	var (
		resp encodeResponse
		err  error
	)

	switch {
	case req.WithTokens:
		resp.Normalized, resp.Tokens, err = h.engine.Tokens(req.Text)
		if err == nil {
			resp.IDs = make([]uint32, len(resp.Tokens))
			for i, t := range resp.Tokens {
				resp.IDs[i] = t.ID
			}
		}
	case req.Words != nil:
		resp.IDs, err = h.engine.EncodeWords(ctx, req.Words)
	default:
		resp.IDs, err = h.engine.Encode(ctx, req.Text)
	}

	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.fail(w, r, "encode", err,
			slog.Int("text_len", size),
			slog.Int64("duration_ms", durationMS),
		)
		return
	}

	if resp.IDs == nil {
		resp.IDs = []uint32{}
	}

	h.log.InfoContext(r.Context(), "encode complete",
		slog.Int("text_len", size),
		slog.Int("ids", len(resp.IDs)),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, resp)
}

type tokenizeRequest struct {
	Word string `json:"word"`
}

type tokenizeResponse struct {
	Tokens []bpe.Token `json:"tokens"`
}

func (h *handler) handleTokenize(w http.ResponseWriter, r *http.Request) {
	var req tokenizeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	if req.Word == "" {
		writeError(w, http.StatusBadRequest, "word field is required")
		return
	}

	if len(req.Word) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("word exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	tokens, err := h.engine.TokenizeWord(req.Word)
	if err != nil {
		h.fail(w, r, "tokenize", err, slog.Int("text_len", len(req.Word)))
		return
	}

	writeJSON(w, http.StatusOK, tokenizeResponse{Tokens: tokens})
}

type decodeRequest struct {
	IDs []uint32 `json:"ids"`
}

type decodeResponse struct {
	Text string `json:"text"`
}

func (h *handler) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	if req.IDs == nil {
		writeError(w, http.StatusBadRequest, "ids field is required")
		return
	}

	if len(req.IDs) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("ids exceed maximum count of %d", h.opts.maxTextBytes))
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	s, err := h.engine.Decode(req.IDs)
	if err != nil {
		h.fail(w, r, "decode", err, slog.Int("ids", len(req.IDs)))
		return
	}

	writeJSON(w, http.StatusOK, decodeResponse{Text: s})
}

// decodeRequest enforces POST and decodes a JSON body into v. On failure it
// writes the error response and returns false.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}

	// JSON escaping can inflate text up to six bytes per input byte.
	body := http.MaxBytesReader(w, r.Body, int64(h.opts.maxTextBytes)*6+4096)

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}

		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())

		return false
	}

	return true
}

// acquire takes a worker slot, honouring context cancellation while
// waiting. It returns false after writing a 503 if the request went away.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

// fail logs err and writes the matching error response.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, op string, err error, attrs ...slog.Attr) {
	status := statusFor(err)

	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("op", op), slog.String("error", err.Error()))
	for _, a := range attrs {
		args = append(args, a)
	}

	switch {
	case status == http.StatusGatewayTimeout:
		h.log.WarnContext(r.Context(), op+" timed out", args...)
		writeError(w, status, op+" timed out")
	case status >= http.StatusInternalServerError:
		h.log.ErrorContext(r.Context(), op+" failed", args...)
		writeError(w, status, err.Error())
	default:
		h.log.InfoContext(r.Context(), op+" rejected", args...)
		writeError(w, status, err.Error())
	}
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, text.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, bpe.ErrUnmappableCharacter), errors.Is(err, bpe.ErrUnknownID):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	tok             *tokenizer.Tokenizer
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New returns a Server for cfg. If tok is nil, Start loads the model files
// named in cfg.
func New(cfg config.Config, tok *tokenizer.Tokenizer) *Server {
	shutdown := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		shutdown = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		tok:             tok,
		logger:          slog.Default(),
		shutdownTimeout: shutdown,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger sets the logger used by the server and its handler.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

func (s *Server) Start(ctx context.Context) error {
	tok := s.tok
	if tok == nil {
		var err error

		tok, err = tokenizer.FromConfig(s.cfg, tokenizer.WithLogger(s.logger))
		if err != nil {
			return fmt.Errorf("initialize tokenizer: %w", err)
		}
	}

	handlerOpts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second),
		WithLogger(s.logger),
	}

	h := NewHandler(tok, tok.Model(), handlerOpts...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("server listening", slog.String("addr", s.cfg.Server.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
