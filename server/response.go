package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"jukebox/core/queue"
	"jukebox/logger"
)

// MessageResponse 通用的操作结果
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", logger.ErrorField(err))
	}
}

// writeError 把队列错误映射为 HTTP 状态码，存储层错误不向客户端暴露细节
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, queue.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, MessageResponse{Success: false, Message: err.Error()})
	case errors.Is(err, queue.ErrNotFound):
		writeJSON(w, http.StatusNotFound, MessageResponse{Success: false, Message: notFound})
	default:
		logger.Error("request failed",
			logger.ErrorField(err),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Success: false, Message: "Internal error"})
	}
}

// decodeBody 解析 JSON 请求体，空请求体视为零值
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
