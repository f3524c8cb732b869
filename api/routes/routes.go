package routes

import (
	"time"

	"agencecom/api/handler"
	"agencecom/api/middleware"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type Router struct {
	Echo           *echo.Echo
	Accounts       *handler.AccountHandler
	Contact        *handler.ContactHandler
	AuthMiddleware middleware.AuthMiddleware
	PublicRate     *middleware.RateLimiter
	CredentialRate *middleware.RateLimiter
}

func NewRouter(e *echo.Echo, accounts *handler.AccountHandler, contact *handler.ContactHandler, auth middleware.AuthMiddleware) *Router {
	return &Router{
		Echo:           e,
		Accounts:       accounts,
		Contact:        contact,
		AuthMiddleware: auth,
		PublicRate:     middleware.NewRateLimiter(rate.Limit(5), 10, 5*time.Minute),
		CredentialRate: middleware.NewRateLimiter(rate.Limit(2), 4, 10*time.Minute),
	}
}

func (r *Router) RegisterRoutes() {
	e := r.Echo

	e.POST("/users/register", r.Accounts.Register, r.PublicRate.Middleware())
	e.POST("/users/login", r.Accounts.Login, r.CredentialRate.Middleware())
	e.GET("/users/logout", r.Accounts.Logout)
	e.GET("/users/verify/:token", r.Accounts.VerifyEmail, r.PublicRate.Middleware())
	e.POST("/users/password/forgot", r.Accounts.ForgotPassword, r.CredentialRate.Middleware())
	e.POST("/users/password/reset/:token", r.Accounts.ResetPassword, r.PublicRate.Middleware())
	e.POST("/users/resend-verification", r.Accounts.ResendVerification, r.PublicRate.Middleware())

	e.GET("/me", r.Accounts.Me, r.AuthMiddleware.RequireAuth)
	e.GET("/admin/users", r.Accounts.AdminListAccounts, r.AuthMiddleware.RequireAuth, middleware.RequireRole("admin"))

	e.POST("/contact", r.Contact.Submit, r.PublicRate.Middleware())
}
