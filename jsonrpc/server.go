package jsonrpc

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/holiman/uint256"

	"github.com/mezonai/devnode/block"
	"github.com/mezonai/devnode/errors"
	"github.com/mezonai/devnode/fees"
	"github.com/mezonai/devnode/jsonx"
	"github.com/mezonai/devnode/logx"
	"github.com/mezonai/devnode/ratelimit"
)

// Snapshotter takes and restores chain checkpoints.
type Snapshotter interface {
	Snapshot(ctx context.Context) (uint64, error)
	Revert(ctx context.Context, id uint64) (bool, error)
	Len() int
}

// DevChain is the block production surface exposed over RPC.
type DevChain interface {
	BestNumber(ctx context.Context) (uint64, error)
	Mine(ctx context.Context) (*block.Block, error)
	IncreaseTime(seconds int64) (int64, error)
	SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error
	SetNextBlockBaseFee(fee *uint256.Int) error
}

// JSON-RPC codes beyond the ones jrpc2 defines.
const (
	codeServerError   jrpc2.Code = -32000
	codeLimitExceeded jrpc2.Code = -32005
)

const maxRequestBodyBytes = 128 * 1024

// --- Error mapping ---

// toJRPC2Error maps a DevError onto a JSON-RPC error, keeping the structured
// error as data. Other errors become internal errors.
func toJRPC2Error(err error) error {
	if err == nil {
		return nil
	}

	var devErr *errors.DevError
	if !errors.As(err, &devErr) {
		return jrpc2.Errorf(jrpc2.InternalError, "%s", errors.ErrMsgInternal).WithData(errors.DevError{
			Code:    errors.ErrCodeInternal,
			Message: errors.ErrMsgInternal,
			Detail:  err.Error(),
		})
	}

	var c jrpc2.Code
	switch devErr.Code {
	case errors.ErrCodeHostFailure:
		c = codeServerError
	case errors.ErrCodeInvalidRequest:
		c = jrpc2.InvalidParams
	case errors.ErrCodeRateLimited:
		c = codeLimitExceeded
	default:
		c = jrpc2.InternalError
	}

	data := errors.DevError{Code: devErr.Code, Message: devErr.Message}
	if cause := devErr.Cause(); cause != nil {
		data.Detail = cause.Error()
	}
	return jrpc2.Errorf(c, "%s", devErr.Message).WithData(data)
}

func invalidParams(err error) error {
	return jrpc2.Errorf(jrpc2.InvalidParams, "%s: %s", errors.ErrMsgInvalidRequest, err.Error())
}

// --- Server ---

type Server struct {
	addr       string
	snapshots  Snapshotter
	chain      DevChain
	fees       *fees.BlockRatioFee
	corsConfig CORSConfig
	limiter    *ratelimit.RateLimiter
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

func NewServer(addr string, snapshots Snapshotter, chain DevChain, feeConverter *fees.BlockRatioFee) *Server {
	return &Server{
		addr:      addr,
		snapshots: snapshots,
		chain:     chain,
		fees:      feeConverter,
	}
}

// SetCORSConfig allows configuring CORS settings
func (s *Server) SetCORSConfig(config CORSConfig) {
	s.corsConfig = config
}

// SetRateLimiter enables per client IP limiting. nil disables it.
func (s *Server) SetRateLimiter(rl *ratelimit.RateLimiter) {
	s.limiter = rl
}

// Handler returns the HTTP handler serving the method map. The returned
// bridge must be closed by the caller.
func (s *Server) Handler() (http.Handler, func() error) {
	jh := jhttp.NewBridge(s.buildMethodMap(), &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if s.limiter != nil {
			ip := extractClientIPFromRequest(r)
			if err := s.limiter.Check(ip); err != nil {
				logx.Warn("JSONRPC", fmt.Sprintf("Rate limited | error=%v", err))
				writeRateLimited(w)
				return
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		jh.ServeHTTP(w, r)
	})
	return h, jh.Close
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	h, closeBridge := s.Handler()
	defer func() { _ = closeBridge() }()

	mux := http.NewServeMux()
	mux.Handle("/", h)
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info("JSONRPC", fmt.Sprintf("Listening | addr=%s", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("json-rpc server: %w", err)
	}
}

// Build jrpc2 method map
func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		MethodEvmSnapshot: handler.New(func(ctx context.Context, p noParams) (quantity, error) {
			if err := p.check(); err != nil {
				return 0, invalidParams(err)
			}
			id, err := s.snapshots.Snapshot(ctx)
			if err != nil {
				return 0, toJRPC2Error(err)
			}
			return quantity(id), nil
		}),
		MethodEvmRevert: handler.New(func(ctx context.Context, p quantityParams) (bool, error) {
			id, err := p.single()
			if err != nil {
				return false, invalidParams(err)
			}
			ok, err := s.snapshots.Revert(ctx, id)
			if err != nil {
				return false, toJRPC2Error(err)
			}
			return ok, nil
		}),
		MethodEvmMine: handler.New(func(ctx context.Context, p noParams) (quantity, error) {
			if err := p.check(); err != nil {
				return 0, invalidParams(err)
			}
			b, err := s.chain.Mine(ctx)
			if err != nil {
				return 0, toJRPC2Error(err)
			}
			return quantity(b.Number), nil
		}),
		MethodEvmIncreaseTime: handler.New(func(ctx context.Context, p quantityParams) (int64, error) {
			seconds, err := p.single()
			if err != nil {
				return 0, invalidParams(err)
			}
			if seconds > math.MaxInt64 {
				return 0, invalidParams(fmt.Errorf("time increase too large: %d", seconds))
			}
			offset, err := s.chain.IncreaseTime(int64(seconds))
			if err != nil {
				return 0, toJRPC2Error(err)
			}
			return offset, nil
		}),
		MethodEvmSetNextBlockTimestamp: handler.New(func(ctx context.Context, p quantityParams) (bool, error) {
			ts, err := p.single()
			if err != nil {
				return false, invalidParams(err)
			}
			if err := s.chain.SetNextBlockTimestamp(ctx, ts); err != nil {
				return false, toJRPC2Error(err)
			}
			return true, nil
		}),
		MethodEvmSetNextBlockBaseFeePerGas: handler.New(func(ctx context.Context, p baseFeeParams) (bool, error) {
			if len(p) != 1 {
				return false, invalidParams(fmt.Errorf("expected 1 parameter, got %d", len(p)))
			}
			if err := s.chain.SetNextBlockBaseFee(&p[0].Int); err != nil {
				return false, toJRPC2Error(err)
			}
			return true, nil
		}),
		MethodEthBlockNumber: handler.New(func(ctx context.Context, p noParams) (quantity, error) {
			if err := p.check(); err != nil {
				return 0, invalidParams(err)
			}
			n, err := s.chain.BestNumber(ctx)
			if err != nil {
				return 0, toJRPC2Error(errors.Wrap(err, errors.ErrCodeHostFailure, errors.ErrMsgChainHead))
			}
			return quantity(n), nil
		}),
		MethodDevWeightToFee: handler.New(func(ctx context.Context, p weightParams) (*weightToFeeResponse, error) {
			fee := s.fees.WeightToFee(fees.Weight{RefTime: p.RefTime, ProofSize: p.ProofSize})
			return &weightToFeeResponse{Fee: fee.Dec()}, nil
		}),
		MethodDevFeeToWeight: handler.New(func(ctx context.Context, p feeParams) (*feeToWeightResponse, error) {
			w := s.fees.FeeToWeight(p.Fee)
			return &w, nil
		}),
		MethodHealthCheck: handler.New(func(ctx context.Context) (*healthResponse, error) {
			n, err := s.chain.BestNumber(ctx)
			if err != nil {
				return nil, toJRPC2Error(errors.Wrap(err, errors.ErrCodeHostFailure, errors.ErrMsgChainHead))
			}
			return &healthResponse{Status: "ok", BlockNumber: quantity(n), Snapshots: s.snapshots.Len()}, nil
		}),
	}
}

// --- Helpers ---

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcErrorResponse struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      *string      `json:"id"`
	Error   rpcErrorBody `json:"error"`
}

func writeRateLimited(w http.ResponseWriter) {
	body, _ := jsonx.Marshal(rpcErrorResponse{
		JSONRPC: "2.0",
		Error:   rpcErrorBody{Code: int(codeLimitExceeded), Message: errors.ErrMsgRateLimited},
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write(body)
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	// Set allowed origins
	if len(s.corsConfig.AllowedOrigins) > 0 {
		if s.corsConfig.AllowedOrigins[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.corsConfig.AllowedOrigins {
				if origin == allowedOrigin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
					break
				}
			}
		}
	}

	if len(s.corsConfig.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.corsConfig.AllowedMethods, ", "))
	}

	if len(s.corsConfig.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.corsConfig.AllowedHeaders, ", "))
	}

	if s.corsConfig.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(s.corsConfig.MaxAge))
	}
}

// --- Env helpers ---

// CORSFromEnv reads environment variables and constructs a CORSConfig.
// Returns (cfg, true) if any CORS-related env var is set; otherwise (zero, false).
//
// Env vars:
// - CORS_ALLOWED_ORIGINS: comma-separated list
// - CORS_ALLOWED_METHODS: comma-separated list
// - CORS_ALLOWED_HEADERS: comma-separated list
// - CORS_MAX_AGE: integer seconds
func CORSFromEnv() (CORSConfig, bool) {
	origins := os.Getenv("CORS_ALLOWED_ORIGINS")
	methods := os.Getenv("CORS_ALLOWED_METHODS")
	headers := os.Getenv("CORS_ALLOWED_HEADERS")
	maxAgeStr := os.Getenv("CORS_MAX_AGE")

	var maxAge int
	if maxAgeStr != "" {
		if v, err := strconv.Atoi(maxAgeStr); err == nil {
			maxAge = v
		}
	}

	var allowedOrigins, allowedMethods, allowedHeaders []string
	if origins != "" {
		allowedOrigins = splitAndTrim(origins)
	}
	if methods != "" {
		allowedMethods = splitAndTrim(methods)
	}
	if headers != "" {
		allowedHeaders = splitAndTrim(headers)
	}

	provided := len(allowedOrigins) > 0 || len(allowedMethods) > 0 || len(allowedHeaders) > 0 || maxAge > 0
	if !provided {
		return CORSConfig{}, false
	}

	return CORSConfig{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: allowedMethods,
		AllowedHeaders: allowedHeaders,
		MaxAge:         maxAge,
	}, true
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
