// Package httpserver exposes Saddie over HTTP: call signaling, the menu, health, metrics and
// Twilio webhooks.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Rituearth/SADDIE-2.0/internal/checkout"
	"github.com/Rituearth/SADDIE-2.0/internal/menu"
	"github.com/Rituearth/SADDIE-2.0/internal/metrics"
	"github.com/Rituearth/SADDIE-2.0/internal/rtc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	twilioclient "github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

// Offerer answers WebRTC offers.
type Offerer interface {
	HandleOffer(ctx context.Context, offer rtc.SessionDescription) (rtc.SessionDescription, error)
}

type Options struct {
	// CallPassword protects /call when set.
	CallPassword    string
	TwilioAuthToken string
	// PublicURL is the externally visible base URL Twilio signs requests against.
	PublicURL string
	Catalog   *menu.Catalog
	Business  menu.Business
}

// New builds the echo server.
func New(calls Offerer, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/menu", menuHandler(opts.Catalog))

	call := e.Group("/call", middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Auth-Token"},
	}), callAuth(opts.CallPassword))
	call.POST("", offerHandler(calls))

	tw := e.Group("/twilio", twilioSignature(opts.TwilioAuthToken, opts.PublicURL))
	tw.POST("/voice", voiceHandler(opts.Business))
	tw.POST(strings.TrimPrefix(checkout.SMSStatusPath, "/twilio"), smsStatusHandler)
	return e
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("http request")
			return nil
		},
	})
}

func offerHandler(calls Offerer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var offer rtc.SessionDescription
		if err := c.Bind(&offer); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offer")
		}
		answer, err := calls.HandleOffer(c.Request().Context(), offer)
		if errors.Is(err, rtc.ErrInvalidOffer) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err != nil {
			log.Error().Err(err).Msg("webrtc handle offer failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "could not start call")
		}
		return c.JSON(http.StatusOK, answer)
	}
}

func menuHandler(catalog *menu.Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		if catalog == nil {
			return c.JSON(http.StatusOK, []menu.Item{})
		}
		return c.JSON(http.StatusOK, catalog.Items())
	}
}

// callAuth accepts the password as ?password=, a bearer token or X-Auth-Token.
func callAuth(password string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions || callAuthOK(c.Request(), password) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
	}
}

func callAuthOK(r *http.Request, password string) bool {
	if password == "" {
		return true
	}
	if r == nil {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == password {
		return true
	}
	ah := r.Header.Get(echo.HeaderAuthorization)
	if len(ah) > len("bearer ") && strings.EqualFold(ah[:len("bearer ")], "bearer ") {
		if strings.TrimSpace(ah[len("bearer "):]) == password {
			return true
		}
	}
	return r.Header.Get("X-Auth-Token") == password
}

// twilioSignature rejects webhook requests whose X-Twilio-Signature does not match.
func twilioSignature(authToken, publicURL string) echo.MiddlewareFunc {
	validator := twilioclient.NewRequestValidator(authToken)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authToken == "" {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "TWILIO_AUTH_TOKEN not configured")
			}
			form, err := c.FormParams()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "failed to parse form data")
			}
			params := make(map[string]string, len(form))
			for k, vs := range form {
				if len(vs) > 0 {
					params[k] = vs[0]
				}
			}
			url := webhookURL(c.Request(), publicURL)
			if !validator.Validate(url, params, c.Request().Header.Get("X-Twilio-Signature")) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid Twilio signature")
			}
			c.Set("twilioParams", params)
			return next(c)
		}
	}
}

// webhookURL rebuilds the URL Twilio signed. Behind a proxy the public base URL wins.
func webhookURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/") + r.URL.RequestURI()
	}
	scheme := "https"
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
		if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
			scheme = "http"
		}
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func smsStatusHandler(c echo.Context) error {
	params, _ := c.Get("twilioParams").(map[string]string)
	status := params["MessageStatus"]
	if status == "" {
		status = "unknown"
	}
	metrics.ConfirmationTexts.WithLabelValues(status).Inc()
	log.Info().Str("message_sid", params["MessageSid"]).Str("status", status).Str("error_code", params["ErrorCode"]).Msg("confirmation text status")
	return c.NoContent(http.StatusNoContent)
}

// voiceHandler answers phone calls: voice ordering runs in the browser, so callers are pointed there.
func voiceHandler(b menu.Business) echo.HandlerFunc {
	return func(c echo.Context) error {
		msg := "Thanks for calling " + b.Name + ". Saddie takes orders on our website. Please visit us online to order by voice. Goodbye!"
		doc, err := twiml.Voice([]twiml.Element{&twiml.VoiceSay{Message: msg}, &twiml.VoiceHangup{}})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "twiml")
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationXML, []byte(doc))
	}
}
