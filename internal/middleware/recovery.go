package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// PanicRecorder は回復したpanicの記録インターフェース。
type PanicRecorder interface {
	RecordPanic()
}

// NewRecoveryMiddleware はハンドラー内のpanicを回復し、INTERNAL_ERRORの500を返すミドルウェアを生成する。
// recorderはnilでもよい。http.ErrAbortHandlerは回復せずに再送出する。
func NewRecoveryMiddleware(recorder PanicRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				if recorder != nil {
					recorder.RecordPanic()
				}
				slog.ErrorContext(r.Context(), "handler panicked",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("route", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
