package httpkit

import (
	"compress/flate"
	"net/http"
	"time"

	"devflow/internal/platform/config"
	"devflow/internal/platform/net/middleware"
)

// StackOptions tune CommonStack
type StackOptions struct {
	Origins     []string
	Timeout     time.Duration
	MaxInFlight int
	Slow        time.Duration
}

// StackFromConfig reads CORE_API_ keys for the shared middleware stack
func StackFromConfig(cfg config.Conf) StackOptions {
	in := cfg.Prefix("CORE_API_")
	return StackOptions{
		Origins:     in.MayCSV("CORS_ORIGINS", nil),
		Timeout:     in.MayDuration("REQUEST_TIMEOUT", 2*time.Minute),
		MaxInFlight: in.MayInt("MAX_IN_FLIGHT", 64),
		Slow:        in.MayDuration("SLOW_REQUEST", 2*time.Second),
	}
}

// CommonStack returns the middleware every API route runs behind; order matters
func CommonStack(o StackOptions) []func(http.Handler) http.Handler {
	mws := []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.RealIP(),
		middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: o.Slow}),
		middleware.RecoverJSON,
		middleware.NoCache(),
		middleware.CORS(middleware.CORSOptions{AllowedOrigins: o.Origins}),
		middleware.Compress(flate.BestSpeed),
		middleware.StripSlashes(),
	}
	if o.MaxInFlight > 0 {
		mws = append(mws, middleware.Throttle(o.MaxInFlight))
	}
	if o.Timeout > 0 {
		mws = append(mws, middleware.Timeout(o.Timeout))
	}
	return mws
}
