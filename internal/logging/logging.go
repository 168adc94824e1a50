package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// global logger
var logger = logrus.New()

var skipPaths = map[string]bool{}

func Log() *logrus.Logger {
	return logger
}

// Configure sets level, output format and the request paths that are not logged.
func Configure(level string, jsonFormat bool, skip []string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		logger.SetLevel(logrus.DebugLevel)
	case "WARN":
		logger.SetLevel(logrus.WarnLevel)
	case "ERROR":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if jsonFormat {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	skipPaths = map[string]bool{}
	for _, p := range skip {
		if p = strings.TrimSpace(p); p != "" {
			skipPaths[p] = true
		}
	}
	if len(skipPaths) > 0 {
		logger.Infof("Will skip request logging for paths %v.", skip)
	}
}

// RequestLogger logs one line per request with method, path, status and latency.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= 500 {
			entry.Warn("request failed")
		} else {
			entry.Info("request")
		}
	})
}
