// Package middleware carries the Twilio webhook signature check. Only the
// /twilio/ webhook routes are guarded; the operator REST API is left to the
// deployment's own ingress auth.
package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// validSignature checks the X-Twilio-Signature scheme: HMAC-SHA1 over the
// full URL plus the sorted form parameters.
func validSignature(authToken, signature, fullURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := fullURL
	for _, k := range keys {
		data += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// TwilioAuth validates webhook requests under /twilio/ and stashes the parsed
// form parameters in the context as "twilioParams" for the handlers.
func TwilioAuth(authToken string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, "/twilio/") {
				return next(c)
			}
			if authToken == "" {
				return c.String(http.StatusServiceUnavailable, "Twilio auth token not configured")
			}

			body, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "failed to read request body")
			}
			form, err := url.ParseQuery(string(body))
			if err != nil {
				return c.String(http.StatusBadRequest, "failed to parse form data")
			}
			params := make(map[string]string, len(form))
			for key, values := range form {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			signature := c.Request().Header.Get("X-Twilio-Signature")
			requestURL := fmt.Sprintf("https://%s%s", c.Request().Host, c.Request().URL.Path)
			if !validSignature(authToken, signature, requestURL, params) {
				return c.String(http.StatusUnauthorized, "invalid Twilio signature")
			}

			c.Set("twilioParams", params)
			return next(c)
		}
	}
}
