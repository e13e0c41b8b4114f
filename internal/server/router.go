package server

import "net/http"

// AuthHandler is the minimal surface the router needs from the decision
// pipeline.
type AuthHandler interface {
	ServeAuth(http.ResponseWriter, *http.Request)
}

// NewRouter wires URL dispatch so the lifecycle server owns routing without
// embedding it into the pipeline: the forward-auth endpoint, the admin
// surface (prefix-stripped), and the metrics endpoint.
func NewRouter(auth AuthHandler, admin http.Handler, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	if auth == nil {
		mux.HandleFunc("/auth", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "pipeline unavailable", http.StatusServiceUnavailable)
		})
	} else {
		mux.HandleFunc("GET /auth", auth.ServeAuth)
	}

	if admin != nil {
		mux.Handle("/admin/", http.StripPrefix("/admin", admin))
	}
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return mux
}
