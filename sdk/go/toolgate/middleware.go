package toolgate

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware authorizes each HTTP request as an execute of the
// http_request tool before passing it to next. Blocked requests receive
// a 403 with a JSON body; gateway failures receive a 503.
func Middleware(a Authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := a.Authorize(r.Context(), actionFromRequest(r))
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "authorization unavailable"})
			return
		}
		if !res.Allowed() {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"blocked":    true,
				"decision":   string(res.Decision),
				"reason":     res.Reason,
				"action_id":  res.ActionID,
				"risk_score": res.RiskScore,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// actionFromRequest maps an HTTP request to an Action.
func actionFromRequest(r *http.Request) Action {
	target := r.URL.String()
	if r.URL.Host == "" && r.Host != "" {
		target = r.Host + r.URL.RequestURI()
	}
	return Action{
		Kind:     "execute",
		Resource: "http_request " + target,
		Metadata: map[string]string{
			"method": strings.ToUpper(r.Method),
			"remote": r.RemoteAddr,
		},
	}
}
