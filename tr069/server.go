// Package tr069 is the CWMP HTTP boundary: one POST endpoint devices talk
// to, plus an operational status endpoint. All orchestration lives in the
// app package; handlers here only classify, delegate and write exactly one
// response body per request.
package tr069

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ispbillingai/acs-sub000/app"
)

// Tr069CookieName carries the device serial between requests of one HTTP
// session. It is only a hint for correlating non-Inform messages; all task
// state lives in the database.
const Tr069CookieName = "acs_sn"

type Tr069Server struct {
	app  *app.Application
	root *echo.Echo
}

func NewTr069Server(application *app.Application) *Tr069Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Tr069Server{app: application, root: e}
	s.initRouter()
	return s
}

func (s *Tr069Server) initRouter() {
	basicAuth := middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm: s.app.Config().Tr069.Realm,
		Validator: func(username, password string, c echo.Context) (bool, error) {
			return s.app.Creds().Check(username, password), nil
		},
	})
	s.root.Add(http.MethodPost, "/", s.Tr069Index, basicAuth)
	s.root.Add(http.MethodGet, "/status", s.StatusIndex)
}

// Echo exposes the router for tests and embedding.
func (s *Tr069Server) Echo() *echo.Echo { return s.root }

func (s *Tr069Server) Start() error {
	return s.root.Start(s.app.Config().Tr069.Listen)
}

func (s *Tr069Server) GetLatestCookieSn(c echo.Context) string {
	cookie, err := c.Cookie(Tr069CookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

func (s *Tr069Server) SetLatestInformByCookie(c echo.Context, sn string) {
	c.SetCookie(&http.Cookie{Name: Tr069CookieName, Value: sn, Path: "/"})
}
