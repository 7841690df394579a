package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, the HTTP layer stays quiet.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

func logInferStart(r *http.Request, rank int, withModel bool) {
	if zlog == nil {
		return
	}
	z := zlog.Info().Str("path", r.URL.Path).Int("rank", rank).Bool("flash", withModel)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg("infer start")
}
