package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *handlers) signup(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !bind(c, &req) {
		return
	}
	res, err := h.Auth.Signup(c.Request.Context(), projectID(c), req.Email, req.Password, req.Name)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "user signed up", map[string]any{"email": req.Email})
	c.JSON(http.StatusOK, res)
}

func (h *handlers) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bind(c, &req) {
		return
	}
	res, err := h.Auth.Login(c.Request.Context(), projectID(c), req.Email, req.Password, c.ClientIP())
	if err != nil {
		note(c, "login failed", map[string]any{"email": req.Email})
		respondError(c, err, h.Log)
		return
	}
	note(c, "user logged in", map[string]any{"email": req.Email})
	c.JSON(http.StatusOK, res)
}

func (h *handlers) google(c *gin.Context) {
	var req struct {
		Credential string `json:"credential"`
	}
	if !bind(c, &req) {
		return
	}
	if req.Credential == "" {
		respondMessage(c, http.StatusBadRequest, "credential is required")
		return
	}
	res, err := h.Auth.Google(c.Request.Context(), projectID(c), req.Credential)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "google sign-in", nil)
	c.JSON(http.StatusOK, res)
}

func (h *handlers) listUsers(c *gin.Context) {
	users, err := h.Auth.Users(c.Request.Context(), projectID(c))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *handlers) deleteUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.Auth.DeleteUser(c.Request.Context(), projectID(c), userID); err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "user deleted", map[string]any{"user_id": userID})
	success(c, gin.H{"message": "User deleted successfully"})
}

func (h *handlers) setupOTP(c *gin.Context) {
	claims := sessionClaims(c)
	setup, err := h.Auth.SetupOTP(c.Request.Context(), claims.ProjectID, claims.UserID)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, setup)
}

func (h *handlers) verifyOTP(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if !bind(c, &req) {
		return
	}
	claims := sessionClaims(c)
	ok, err := h.Auth.VerifyOTP(c.Request.Context(), claims.ProjectID, claims.UserID, req.Code)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": ok})
}

func (h *handlers) setExpiry(c *gin.Context) {
	var req struct {
		Expiry string `json:"expiry"`
	}
	if !bind(c, &req) {
		return
	}
	claims := sessionClaims(c)
	if err := h.Auth.SetExpiry(c.Request.Context(), claims.ProjectID, claims.UserID, req.Expiry); err != nil {
		respondError(c, err, h.Log)
		return
	}
	success(c, nil)
}

func (h *handlers) me(c *gin.Context) {
	claims := sessionClaims(c)
	user, err := h.Auth.Me(c.Request.Context(), claims.ProjectID, claims.UserID)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, user)
}
