package opshttp

import (
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
)

// requireNonPublicNetwork refuses peers that are not loopback, private or
// link-local. It reads RemoteAddr only; forwarding headers are ignored.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		ip := net.ParseIP(host)
		if err != nil || ip == nil || !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
			L.Warn(r.Context(), "ops request from public network refused",
				"network.peer.address", r.RemoteAddr,
				"url.path", r.URL.Path,
			)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RegisterPprof mounts the net/http/pprof handlers under /debug/pprof/.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
