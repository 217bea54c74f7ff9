package auth

import "context"

// AnonymousOperator 是未携带令牌（或鉴权关闭）时在日志中使用的操作员名。
const AnonymousOperator = "anonymous"

type operatorKey struct{}

// WithSubject 把通过校验的操作员放入请求上下文，权限集合在此时展开。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	subject.normalise()
	return context.WithValue(ctx, operatorKey{}, subject)
}

// SubjectFromContext 返回请求上下文中的操作员，没有时返回 nil。
func SubjectFromContext(ctx context.Context) *Subject {
	if ctx == nil {
		return nil
	}
	subject, _ := ctx.Value(operatorKey{}).(*Subject)
	return subject
}

// OperatorName 返回写入审计与错误日志的操作员名。
func OperatorName(ctx context.Context) string {
	if subject := SubjectFromContext(ctx); subject != nil && subject.Name != "" {
		return subject.Name
	}
	return AnonymousOperator
}
