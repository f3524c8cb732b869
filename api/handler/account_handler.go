package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"agencecom/api/middleware"
	"agencecom/internal/dto"
	"agencecom/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type AccountHandler struct {
	Service       *service.AccountService
	Validate      *validator.Validate
	CookieName    string
	CookieDomain  string
	SecureCookies bool
	SameSite      http.SameSite
	SessionTTL    time.Duration
	LoginPath     string
}

func NewAccountHandler(svc *service.AccountService, validate *validator.Validate) *AccountHandler {
	return &AccountHandler{
		Service:       svc,
		Validate:      validate,
		CookieName:    "token",
		SecureCookies: true,
		SameSite:      http.SameSiteLaxMode,
		SessionTTL:    time.Hour,
		LoginPath:     "/login",
	}
}

func (h *AccountHandler) Register(c echo.Context) error {
	var req dto.RegisterRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	user, err := h.Service.Register(c.Request().Context(), service.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message": "account created, check your inbox to verify your email",
		"user":    dto.AccountResponseFromEntity(user),
	})
}

func (h *AccountHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	result, err := h.Service.Login(c.Request().Context(), req.Email, req.Password, stringPtr(c.RealIP()))
	if err != nil {
		return writeServiceError(c, err)
	}
	h.setSessionCookie(c, result.Token)
	return c.JSON(http.StatusOK, dto.LoginResponse{
		Message: "login successful",
		User:    dto.AccountResponseFromEntity(result.User),
	})
}

func (h *AccountHandler) Logout(c echo.Context) error {
	// Session tokens are stateless; logout only clears the cookie and the
	// token stays valid until its own expiry.
	h.clearSessionCookie(c)
	return c.Redirect(http.StatusFound, h.LoginPath)
}

func (h *AccountHandler) VerifyEmail(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		token = c.QueryParam("token")
	}
	if decoded, err := url.PathUnescape(token); err == nil {
		token = decoded
	}
	if err := h.Service.VerifyEmail(c.Request().Context(), token); err != nil {
		return writeServiceError(c, err)
	}
	return c.Redirect(http.StatusFound, h.LoginPath+"?verified=1")
}

func (h *AccountHandler) ForgotPassword(c echo.Context) error {
	var req dto.ForgotPasswordRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.Service.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return writeServiceError(c, err)
	}
	// Same body whether or not the account exists.
	return c.JSON(http.StatusOK, map[string]string{
		"message": "if an account exists, an email has been sent",
	})
}

func (h *AccountHandler) ResetPassword(c echo.Context) error {
	secret := c.Param("token")
	var req dto.ResetPasswordRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.Service.ResetPassword(c.Request().Context(), secret, req.Password, req.ConfirmPassword); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password reset successful"})
}

func (h *AccountHandler) ResendVerification(c echo.Context) error {
	var req dto.ResendVerificationRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.Service.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "a new verification link has been sent"})
}

func (h *AccountHandler) Me(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	user, err := h.Service.GetAccount(c.Request().Context(), userID)
	if err != nil {
		return writeServiceError(c, err)
	}
	if user == nil {
		return writeError(c, http.StatusNotFound, service.ErrAccountNotFound)
	}
	return c.JSON(http.StatusOK, dto.AccountResponseFromEntity(user))
}

func (h *AccountHandler) AdminListAccounts(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	users, err := h.Service.ListAccounts(c.Request().Context(), limit, offset)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.AccountResponsesFromEntities(users))
}

func (h *AccountHandler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}

func (h *AccountHandler) setSessionCookie(c echo.Context, token string) {
	// Cookie lifetime deliberately equals the token TTL.
	c.SetCookie(&http.Cookie{
		Name:     h.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.CookieDomain,
		MaxAge:   int(h.SessionTTL.Seconds()),
		Expires:  time.Now().Add(h.SessionTTL),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: h.SameSite,
	})
}

func (h *AccountHandler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: h.SameSite,
	})
}

func decodeJSON(c echo.Context, target any) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeError(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"message": err.Error()})
}

// writeServiceError maps sentinel errors to stable statuses; anything else is
// logged by the request middleware and answered with a generic body so store
// or driver detail never reaches the caller.
func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return writeError(c, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrEmailTaken):
		return writeError(c, http.StatusConflict, err)
	case errors.Is(err, service.ErrInvalidCredentials):
		return writeError(c, http.StatusUnauthorized, err)
	case errors.Is(err, service.ErrNotVerified):
		return writeError(c, http.StatusForbidden, err)
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrResetTokenInvalid):
		return writeError(c, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrAlreadyVerified):
		return writeError(c, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrAccountNotFound):
		return writeError(c, http.StatusNotFound, err)
	case errors.Is(err, service.ErrNotification):
		return writeError(c, http.StatusBadGateway, err)
	default:
		return writeError(c, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
