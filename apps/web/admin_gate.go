package main

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	adminSecret            = "admin123"
	adminGateCookieName    = "forestkeeper_admin_gate"
	adminGateTokenLifetime = 12 * time.Hour
	adminGateSubject       = "admin"
)

// AdminGate compares a password against a fixed shared secret. It only
// hides the admin map; it does not protect anything.
type AdminGate struct {
	secret string
}

func newAdminGate() *AdminGate {
	return &AdminGate{secret: adminSecret}
}

func (g *AdminGate) Check(input string) bool {
	return subtle.ConstantTimeCompare([]byte(input), []byte(g.secret)) == 1
}

func (a *App) createAdminGateToken() (string, error) {
	now := a.clock.Now()
	claims := jwt.MapClaims{
		"sub": adminGateSubject,
		"iat": now.Unix(),
		"exp": now.Add(adminGateTokenLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.AppSigningSecret))
}

func (a *App) verifyAdminGateToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.AppSigningSecret), nil
	}, jwt.WithTimeFunc(a.clock.Now))
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid admin gate token")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject != adminGateSubject {
		return fmt.Errorf("invalid admin gate payload")
	}
	return nil
}

// openAdminGate sets a browser-session cookie (no Max-Age).
func (a *App) openAdminGate(c *gin.Context) error {
	token, err := a.createAdminGateToken()
	if err != nil {
		return err
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     adminGateCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   strings.EqualFold(a.cfg.Env, "production"),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (a *App) closeAdminGate(c *gin.Context) {
	secure := strings.EqualFold(a.cfg.Env, "production")
	c.SetCookie(adminGateCookieName, "", -1, "/", "", secure, true)
}

func (a *App) adminGateIsOpen(c *gin.Context) bool {
	token, err := c.Cookie(adminGateCookieName)
	if err != nil || token == "" {
		return false
	}
	return a.verifyAdminGateToken(token) == nil
}

func (a *App) requireAdminGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.adminGateIsOpen(c) {
			c.Redirect(http.StatusSeeOther, "/admin")
			c.Abort()
			return
		}
		c.Next()
	}
}
