package credential

import (
	"context"
	"crypto/rand"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"time"

	"X402-Registry/internal/accumulator"
	xerrors "X402-Registry/internal/errors"
	"X402-Registry/internal/observability/metrics"
	"X402-Registry/internal/registry"
	"X402-Registry/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Registry 是签发方需要的注册表读能力。
type Registry interface {
	Agent(ctx context.Context, id string) (*registry.Agent, error)
	Service(ctx context.Context, id string) (*registry.Service, error)
	Payment(ctx context.Context, id string) (*registry.Payment, error)
}

// Issuer 负责凭证的签发、证明、校验与吊销。
type Issuer struct {
	store      Store
	leaves     accumulator.Store
	registry   Registry
	validate   *validator.Validate
	indicators metrics.Indicators
	logger     *slog.Logger
	now        func() time.Time
	random     io.Reader
}

// Option 定义可选配置。
type Option func(*Issuer)

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithRandom 替换随机源。
func WithRandom(r io.Reader) Option {
	return func(i *Issuer) {
		if r != nil {
			i.random = r
		}
	}
}

// WithIndicators 配置业务指标。
func WithIndicators(ind metrics.Indicators) Option {
	return func(i *Issuer) {
		if ind != nil {
			i.indicators = ind
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(i *Issuer) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIssuer 构造 Issuer。
func NewIssuer(store Store, leaves accumulator.Store, reg Registry, opts ...Option) *Issuer {
	i := &Issuer{
		store:      store,
		leaves:     leaves,
		registry:   reg,
		validate:   validator.New(),
		indicators: metrics.Nop{},
		logger:     logger.Named("credential"),
		now:        func() time.Time { return time.Now().UTC() },
		random:     rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// IssueCredential 为声明生成承诺与 nullifier，追加到 schema 累加器后保存凭证。
func (i *Issuer) IssueCredential(ctx context.Context, claim Claim, issuerID string) (*Credential, error) {
	if err := i.validate.Struct(claim); err != nil {
		return nil, xerrors.Wrap(CodeInvalidClaim, err, "凭证声明不合法")
	}
	if issuerID == "" {
		return nil, xerrors.New(CodeInvalidClaim, "签发者不能为空")
	}
	schemaID, ok := SchemaFor(claim.CredentialType)
	if !ok {
		return nil, ErrUnknownType
	}
	if _, err := i.agent(ctx, claim.AgentID); err != nil {
		return nil, err
	}

	secret := make([]byte, secretSize)
	if _, err := io.ReadFull(i.random, secret); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "生成凭证密钥失败")
	}
	commitment, err := commitmentOf(claim, secret)
	if err != nil {
		return nil, xerrors.Wrap(CodeInvalidClaim, err, "编码凭证声明失败")
	}
	now := i.now()
	proofURI, err := proofURIOf(claim, commitment, secret, now)
	if err != nil {
		return nil, xerrors.Wrap(CodeInvalidClaim, err, "编码证明材料失败")
	}

	cred := &Credential{
		ID:             uuid.NewString(),
		AgentID:        claim.AgentID,
		CredentialType: claim.CredentialType,
		SchemaID:       schemaID,
		Commitment:     commitment,
		Nullifier:      nullifierOf(claim.AgentID, claim.CredentialType, secret),
		ProofURI:       proofURI,
		IssuedBy:       issuerID,
		ExpiresAt:      claim.ValidUntil,
		CreatedAt:      now,
	}

	// 先追加叶子再落库：落库失败只会留下无人引用的叶子。
	if err := i.leaves.Append(ctx, schemaID, commitment); err != nil {
		return nil, err
	}
	if err := i.store.Create(ctx, cred); err != nil {
		return nil, err
	}

	i.indicators.CredentialIssued(schemaID)
	logger.Audit().Info("凭证已签发",
		slog.String("credential_id", cred.ID),
		slog.String("agent_id", cred.AgentID),
		slog.String("schema_id", schemaID),
		slog.String("issued_by", issuerID),
	)
	return cloneCredential(cred), nil
}

// GenerateProof 基于同一次叶子快照计算根与包含路径并生成证明。
func (i *Issuer) GenerateProof(ctx context.Context, credentialID string, revealAttributes []string) (*Proof, error) {
	cred, err := i.store.Get(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.IsRevoked {
		return nil, ErrRevoked
	}
	if cred.ExpiresAt != nil && i.now().After(*cred.ExpiresAt) {
		return nil, ErrExpired
	}

	root, path, err := accumulator.Snapshot(ctx, i.leaves, cred.SchemaID, cred.Commitment)
	if err != nil {
		if stdErrors.Is(err, accumulator.ErrLeafNotFound) {
			return nil, xerrors.Wrap(CodeLeafNotFound, err, "累加器中缺少凭证承诺")
		}
		return nil, err
	}
	proofJSON, err := placeholderProof(i.random)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "生成证明对象失败")
	}

	signals := make([]string, 0, 2+len(revealAttributes))
	signals = append(signals, root, cred.Nullifier)
	signals = append(signals, revealAttributes...)

	i.logger.Debug("生成凭证证明",
		slog.String("credential_id", cred.ID),
		slog.String("schema_id", cred.SchemaID),
		slog.Int("leaf_index", path.Index),
	)
	return &Proof{
		Commitment:    cred.Commitment,
		Nullifier:     cred.Nullifier,
		Proof:         proofJSON,
		PublicSignals: signals,
		MerklePath:    path.Siblings,
		LeafIndex:     path.Index,
	}, nil
}

// VerifyProof 校验 nullifier 已签发、根与当前累加器一致、证明标签符合预期。
// 只有存储故障会返回错误，其余不满足条件的情况返回 false。
func (i *Issuer) VerifyProof(ctx context.Context, proof Proof, schemaID, expectedNullifier string) (bool, error) {
	valid, err := i.verify(ctx, proof, schemaID, expectedNullifier)
	if err != nil {
		return false, err
	}
	i.indicators.ProofVerified(valid)
	return valid, nil
}

func (i *Issuer) verify(ctx context.Context, proof Proof, schemaID, expectedNullifier string) (bool, error) {
	if proof.Nullifier == "" || len(proof.PublicSignals) == 0 {
		return false, nil
	}
	known, err := i.store.NullifierExists(ctx, schemaID, proof.Nullifier)
	if err != nil {
		return false, err
	}
	if !known {
		return false, nil
	}
	if expectedNullifier != "" && proof.Nullifier != expectedNullifier {
		return false, nil
	}
	root, err := accumulator.Root(ctx, i.leaves, schemaID)
	if err != nil {
		if xerrors.CodeOf(err) == accumulator.CodeInvalidLeaf {
			return false, nil
		}
		return false, err
	}
	if proof.PublicSignals[0] != root {
		return false, nil
	}
	var obj proofObject
	if err := json.Unmarshal([]byte(proof.Proof), &obj); err != nil {
		return false, nil
	}
	return obj.Protocol == ProofProtocol && obj.Curve == ProofCurve, nil
}

// RevokeCredential 标记凭证吊销，叶子保留在累加器中。
func (i *Issuer) RevokeCredential(ctx context.Context, credentialID, reason string) (*Credential, error) {
	cred, err := i.store.Revoke(ctx, credentialID, reason, i.now())
	if err != nil {
		return nil, err
	}
	logger.Audit().Info("凭证已吊销",
		slog.String("credential_id", cred.ID),
		slog.String("agent_id", cred.AgentID),
		slog.String("reason", reason),
	)
	return cred, nil
}

// CredentialsByAgent 返回智能体名下未吊销的凭证。
func (i *Issuer) CredentialsByAgent(ctx context.Context, agentID string) ([]*Credential, error) {
	return i.store.ListByAgent(ctx, agentID)
}

// Credential 返回单个凭证。
func (i *Issuer) Credential(ctx context.Context, credentialID string) (*Credential, error) {
	return i.store.Get(ctx, credentialID)
}

// MerkleRoot 返回 schema 当前的累加器根。
func (i *Issuer) MerkleRoot(ctx context.Context, schemaID string) (string, error) {
	return accumulator.Root(ctx, i.leaves, schemaID)
}

func (i *Issuer) agent(ctx context.Context, id string) (*registry.Agent, error) {
	agent, err := i.registry.Agent(ctx, id)
	if err != nil {
		if stdErrors.Is(err, registry.ErrAgentNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return agent, nil
}
