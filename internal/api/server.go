package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"X402-Registry/internal/auth"
	"X402-Registry/internal/credential"
	"X402-Registry/internal/governance"
	"X402-Registry/internal/multisig"
	"X402-Registry/internal/observability/metrics"
)

// Services 汇总 API 层依赖的业务服务。
type Services struct {
	Governance  *governance.Engine
	Multisig    *multisig.Service
	Credentials *credential.Issuer
	Auth        *auth.Service
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr         string
	svc          Services
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithTimeouts 设置 HTTP 读写超时。
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, svc Services, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		svc:          svc,
		readTimeout:  15 * time.Second,
		writeTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册了全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	gov := s.svc.Auth.Middleware(auth.PermGovernanceWrite)
	msig := s.svc.Auth.Middleware(auth.PermMultisigWrite)
	cred := s.svc.Auth.Middleware(auth.PermCredentialWrite)

	s.route(mux, "GET /healthz", nil, s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	s.route(mux, "POST /api/v1/proposals", gov, s.handleCreateProposal)
	s.route(mux, "GET /api/v1/proposals", nil, s.handleActiveProposals)
	s.route(mux, "GET /api/v1/proposals/{id}", nil, s.handleProposalDetails)
	s.route(mux, "POST /api/v1/proposals/{id}/votes", gov, s.handleCastVote)
	s.route(mux, "POST /api/v1/proposals/{id}/close", gov, s.handleCloseProposal)
	s.route(mux, "POST /api/v1/proposals/{id}/execute", gov, s.handleExecuteProposal)
	s.route(mux, "GET /api/v1/agents/{id}/voting-power", nil, s.handleVotingPower)
	s.route(mux, "POST /api/v1/arbitrations", gov, s.handleAssignArbitrator)
	s.route(mux, "GET /api/v1/arbitrations/{id}", nil, s.handleArbitration)
	s.route(mux, "POST /api/v1/arbitrations/{id}/complete", gov, s.handleCompleteArbitration)

	s.route(mux, "POST /api/v1/wallets", msig, s.handleCreateWallet)
	s.route(mux, "GET /api/v1/wallets/{id}", nil, s.handleWallet)
	s.route(mux, "GET /api/v1/wallets/{id}/balance", nil, s.handleWalletBalance)
	s.route(mux, "GET /api/v1/wallets/{id}/transactions", nil, s.handlePendingTransactions)
	s.route(mux, "POST /api/v1/wallets/{id}/transactions", msig, s.handleCreateTransaction)
	s.route(mux, "POST /api/v1/wallets/{id}/signers", msig, s.handleAddSigner)
	s.route(mux, "DELETE /api/v1/wallets/{id}/signers/{signer}", msig, s.handleRemoveSigner)
	s.route(mux, "PUT /api/v1/wallets/{id}/threshold", msig, s.handleUpdateThreshold)
	s.route(mux, "GET /api/v1/transactions/{id}", nil, s.handleTransactionDetails)
	s.route(mux, "POST /api/v1/transactions/{id}/signatures", msig, s.handleSignTransaction)
	s.route(mux, "POST /api/v1/transactions/{id}/cancel", msig, s.handleCancelTransaction)

	s.route(mux, "POST /api/v1/credentials", cred, s.handleIssueCredential)
	s.route(mux, "GET /api/v1/credentials/{id}", nil, s.handleCredential)
	s.route(mux, "POST /api/v1/credentials/{id}/proofs", cred, s.handleGenerateProof)
	s.route(mux, "POST /api/v1/credentials/{id}/revoke", cred, s.handleRevokeCredential)
	s.route(mux, "GET /api/v1/agents/{id}/credentials", nil, s.handleAgentCredentials)
	s.route(mux, "POST /api/v1/agents/{id}/credentials/reputation", cred, s.handleReputationProof)
	s.route(mux, "POST /api/v1/agents/{id}/credentials/transaction-history", cred, s.handleTransactionHistoryProof)
	s.route(mux, "POST /api/v1/agents/{id}/credentials/service-completion", cred, s.handleServiceCompletionProof)
	s.route(mux, "POST /api/v1/proofs/verify", nil, s.handleVerifyProof)
	s.route(mux, "GET /api/v1/schemas/{id}/root", nil, s.handleSchemaRoot)
	return mux
}

// route 注册路由并附加指标采集与可选的鉴权中间件。
func (s *Server) route(mux *http.ServeMux, pattern string, guard func(http.Handler) http.Handler, h http.HandlerFunc) {
	var handler http.Handler = h
	if guard != nil {
		handler = guard(handler)
	}
	mux.Handle(pattern, instrument(pattern, handler))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

// instrument 记录每个路由的请求数、错误数与耗时。
func instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		metrics.ObserveHTTPRequest(pattern, r.Method, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
