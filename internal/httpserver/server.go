// Package httpserver configures the Echo instance shared by the REST API and
// the Twilio webhooks.
package httpserver

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/microdev1/debt-collection-agent/internal/middleware"
)

// New creates a configured Echo server. twilioAuthToken guards the /twilio/
// webhook routes; pass "" when no telephony gateway is wired.
func New(twilioAuthToken string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	if twilioAuthToken != "" {
		e.Use(middleware.TwilioAuth(twilioAuthToken))
	}
	return e
}
