// Account HTTP handlers.
//
//   - POST     /auth/register
//   - POST     /auth/login
//   - GET|POST /auth/me
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-rooms/internal/http/middleware"
)

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"correct horse battery staple"`
}

// LoginResponse carries a bearer token and the account it belongs to.
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"  format:"uuid"`
	Username string `json:"username"`
}

// MeResponse describes the caller's token.
type MeResponse struct {
	UserID   string    `json:"user_id"   format:"uuid"`
	Username string    `json:"username"`
	IssuedAt time.Time `json:"issued_at"`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     200   {object}  handlers.LoginResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Blank username or password"
// @Failure     409   {object}  handlers.ErrorResponse  "Username already taken"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.authSvc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, LoginResponse{Token: res.Token, UserID: res.UserID, Username: res.Username})
}

// Login godoc
// @ID          login
// @Summary     Exchange credentials for a token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     200   {object}  handlers.LoginResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.authSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, LoginResponse{Token: res.Token, UserID: res.UserID, Username: res.Username})
}

// Me godoc
// @ID          me
// @Summary     Describe the current token
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MeResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	uid, name, authed := middleware.Identity(c)
	if !authed {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
		return
	}
	iat := middleware.IssuedAt(c)
	if iat.IsZero() {
		iat = time.Now()
	}
	ok(c, http.StatusOK, MeResponse{UserID: uid, Username: name, IssuedAt: iat.UTC()})
}
