package middleware

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/phrazzld/txtask/internal/api/shared"
	"github.com/phrazzld/txtask/internal/platform/logger"
	"github.com/phrazzld/txtask/internal/txn"
)

// ManagerFactory creates the transaction manager for one request
type ManagerFactory func() *txn.Manager

// bufferedWriter holds the response until the transaction outcome is known.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) flush(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(b.body.Bytes())
}

// Transaction runs every request inside a transaction from a fresh manager.
// The manager is available to handlers through shared.TxManagerFrom. The
// transaction commits when the handler responds with a status below 400 and
// aborts otherwise, so after-commit hooks registered by the handler fire only
// for successful requests. The response is held back until the transaction
// has finished; a failed commit replaces it with an error response.
func Transaction(newManager ManagerFactory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContextOrDefault(r.Context())
			tm := newManager()

			tx, err := tm.Begin(r.Context())
			if err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to start transaction", err)
				return
			}
			ctx := shared.WithTxManager(r.Context(), tm)

			buf := newBufferedWriter()
			defer func() {
				if p := recover(); p != nil {
					if abortErr := tm.Abort(ctx); abortErr != nil {
						log.Error("failed to abort transaction after panic", "error", abortErr)
					}
					// ALLOW-PANIC: re-raised for the recoverer middleware
					panic(p)
				}
			}()

			next.ServeHTTP(buf, r.WithContext(ctx))

			if buf.status >= http.StatusBadRequest {
				if err := tm.Abort(ctx); err != nil {
					log.Error("failed to abort request transaction", "error", err, "transaction_id", tx.ID())
				}
				buf.flush(w)
				return
			}

			if err := tm.Commit(ctx); err != nil {
				status := http.StatusInternalServerError
				if tm.IsRetryable(err) {
					status = http.StatusConflict
				}
				shared.RespondWithErrorAndLog(w, r.WithContext(ctx), status, "Failed to commit transaction", err)
				return
			}

			log.Debug("request transaction committed", slog.String("transaction_id", tx.ID().String()))
			buf.flush(w)
		})
	}
}
