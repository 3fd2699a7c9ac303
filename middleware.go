package kithttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// requestID tags every request with a UUID, exposed via RequestIDFrom and the
// X-Request-ID response header.
func (k *KitHttp) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// mergeParams flattens query string, JSON body and form fields into one map,
// later sources winning. URL path params are merged in at handler time, after
// chi has matched the route. The Locale header (or parameter) is lifted out
// of the merged set.
func (k *KitHttp) mergeParams(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := make(map[string]interface{})

		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		ct := r.Header.Get("Content-Type")
		switch {
		case strings.HasPrefix(ct, "application/json"):
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				for key, value := range body {
					params[key] = value
				}
			}
		case strings.HasPrefix(ct, "multipart/form-data"):
			if err := r.ParseMultipartForm(k.clientMaxSize); err == nil {
				for key, values := range r.MultipartForm.Value {
					if len(values) > 0 {
						params[key] = values[0]
					}
				}
			}
		case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
			if err := r.ParseForm(); err == nil {
				for key, values := range r.PostForm {
					if len(values) > 0 {
						params[key] = values[0]
					}
				}
			}
		}

		locale := r.Header.Get("Locale")
		if v, ok := params["Locale"].(string); ok {
			if locale == "" {
				locale = v
			}
			delete(params, "Locale")
		}

		ctx := context.WithValue(r.Context(), paramsKey, params)
		ctx = context.WithValue(ctx, localeKey, locale)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// auth validates the request's JWT when a secret key is configured. Public
// paths, the static prefix and the metrics endpoint are exempt. Parsed claims
// are stored in the request context.
func (k *KitHttp) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if k.secretKey == "" || k.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("Authorization")
		if token == "" {
			if v, ok := ParamsFrom(r.Context())["Authorization"].(string); ok {
				token = v
			}
		}
		token = strings.TrimPrefix(token, "Bearer ")

		if token == "" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(k.secretKey), nil
		})
		if err != nil {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden:" + err.Error()})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// mergedParams returns the middleware-merged params with chi URL path params
// folded in; path params override everything else.
func mergedParams(r *http.Request) map[string]interface{} {
	params := ParamsFrom(r.Context())
	if rc := chi.RouteContext(r.Context()); rc != nil {
		for i, key := range rc.URLParams.Keys {
			params[key] = rc.URLParams.Values[i]
		}
	}
	return params
}

func (k *KitHttp) isPublic(path string) bool {
	if k.public[path] {
		return true
	}
	if k.staticPrefix != "" && strings.HasPrefix(path, k.staticPrefix) {
		return true
	}
	return false
}
