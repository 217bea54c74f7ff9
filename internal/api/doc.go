// Package api 通过 net/http 暴露治理、多签钱包与凭证服务的 REST 接口。
package api
