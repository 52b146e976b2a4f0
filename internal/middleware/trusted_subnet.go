package middleware

import (
	"net/http"
	"net/netip"

	"github.com/rs/zerolog/log"
)

// TrustedSubnetMiddleware rejects requests whose X-Real-IP header is missing
// or outside trustedSubnet. An empty subnet allows everything; an invalid one
// is logged and also allows everything.
func TrustedSubnetMiddleware(trustedSubnet string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if trustedSubnet == "" {
			return next
		}

		prefix, err := netip.ParsePrefix(trustedSubnet)
		if err != nil {
			log.Warn().Err(err).Str("trusted_subnet", trustedSubnet).Msg("Invalid trusted subnet CIDR format, allowing all requests")
			return next
		}
		prefix = prefix.Masked()

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			realIP := r.Header.Get("X-Real-IP")
			if realIP == "" {
				log.Warn().Str("remote_addr", r.RemoteAddr).Str("uri", r.RequestURI).Msg("X-Real-IP header is required but missing")
				http.Error(w, "X-Real-IP header is required", http.StatusForbidden)
				return
			}

			addr, err := netip.ParseAddr(realIP)
			if err != nil {
				log.Warn().Str("real_ip", realIP).Msg("Invalid IP address in X-Real-IP header")
				http.Error(w, "Invalid IP address in X-Real-IP header", http.StatusForbidden)
				return
			}

			if !prefix.Contains(addr.Unmap()) {
				log.Warn().Str("ip", addr.String()).Str("trusted_subnet", trustedSubnet).Msg("IP address is not in trusted subnet")
				http.Error(w, "IP address is not in trusted subnet", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
