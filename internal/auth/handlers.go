package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LoginPayload defines the expected JSON structure for login requests.
type LoginPayload struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler sets a session cookie when the credentials match.
func (a *Authenticator) LoginHandler(c *gin.Context) {
	var payload LoginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	if !a.admin.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Admin credentials not configured on server"})
		return
	}
	if !a.check(payload.Username, payload.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	token := a.issue()
	c.SetCookie(sessionCookieName, token, int(a.ttl.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": token})
}

// LogoutHandler revokes the session and clears the cookie.
func (a *Authenticator) LogoutHandler(c *gin.Context) {
	if token, err := c.Cookie(sessionCookieName); err == nil {
		a.revoke(token)
	}
	c.SetCookie(sessionCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}
