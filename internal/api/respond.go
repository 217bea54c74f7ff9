package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"X402-Registry/internal/auth"
	xerrors "X402-Registry/internal/errors"
	"X402-Registry/pkg/logger"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf 按错误类别映射 HTTP 状态码。
func statusOf(err error) int {
	switch xerrors.KindOf(err) {
	case xerrors.KindValidation:
		return http.StatusBadRequest
	case xerrors.KindNotFound:
		return http.StatusNotFound
	case xerrors.KindForbidden:
		return http.StatusForbidden
	case xerrors.KindConflict:
		return http.StatusConflict
	case xerrors.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	resp := errorResponse{Code: string(xerrors.CodeOf(err)), Message: err.Error()}
	if e, ok := xerrors.From(err); ok {
		resp.Message = e.Message()
		resp.Metadata = e.Metadata()
	}
	if status >= http.StatusInternalServerError {
		logger.L().Error("请求处理失败",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("operator", auth.OperatorName(r.Context())),
			slog.Any("error", err),
		)
		if status == http.StatusInternalServerError {
			resp.Message = http.StatusText(status)
			resp.Metadata = nil
		}
	}
	writeJSON(w, status, resp)
}

// decodeJSON 解析请求体，空请求体视为空对象。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    string(xerrors.CodeInvalidArgument),
			Message: "请求体解析失败: " + err.Error(),
		})
		return false
	}
	return true
}
