package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access to the gateway. The defaults
// admit browser-based clients (playgrounds, dashboards) and expose the
// session correlation headers they need to read.
type CORSConfig struct {
	// Enabled gates the middleware entirely.
	Enabled bool

	// AllowedOrigins lists permitted origins. ["*"] allows all.
	AllowedOrigins []string

	// AllowedMethods lists permitted HTTP methods.
	AllowedMethods []string

	// AllowedHeaders lists request headers clients may send.
	AllowedHeaders []string

	// ExposedHeaders lists response headers scripts may read.
	ExposedHeaders []string

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int

	// AllowCredentials permits cookies and authorization headers on
	// cross-origin requests. Ignored for wildcard origins.
	AllowCredentials bool
}

// DefaultCORSConfig returns the gateway's stock CORS policy.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"X-TraceForge-Session-ID",
			"X-TraceForge-Step-Index",
			"X-TraceForge-Parent-Trace-ID",
			"X-TraceForge-Step-ID",
			"X-TraceForge-Parent-Step-ID",
			"X-TraceForge-Organization-ID",
			"X-TraceForge-Service-ID",
			"X-TraceForge-State",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
			"X-TraceForge-Session-ID",
			"X-TraceForge-Trace-ID",
			"X-TraceForge-Next-Step",
		},
		MaxAge: 3600,
	}
}

// CORSMiddleware answers preflight requests and stamps CORS headers on
// every response per the given policy.
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin != "" && isOriginAllowed(origin, config.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if config.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if len(config.ExposedHeaders) > 0 {
					w.Header().Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
				}
			} else if containsString(config.AllowedOrigins, "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				if len(config.ExposedHeaders) > 0 {
					w.Header().Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
				}
			}

			if r.Method == http.MethodOptions {
				if len(config.AllowedMethods) > 0 {
					w.Header().Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
				}
				if len(config.AllowedHeaders) > 0 {
					w.Header().Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
				}
				if config.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
