package main

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	deviceCookieName   = "forestkeeper_device"
	deviceCookieMaxAge = 400 * 24 * time.Hour
	deviceContextKey   = "deviceID"
)

// ensureDeviceID returns the browser's anonymous device id, issuing a new
// cookie when it is missing or not a UUID.
func (a *App) ensureDeviceID(c *gin.Context) string {
	if value, ok := c.Get(deviceContextKey); ok {
		if id, castOK := value.(string); castOK {
			return id
		}
	}

	deviceID, err := c.Cookie(deviceCookieName)
	if err == nil {
		if parsed, parseErr := uuid.Parse(strings.TrimSpace(deviceID)); parseErr == nil {
			deviceID = parsed.String()
			c.Set(deviceContextKey, deviceID)
			return deviceID
		}
	}

	deviceID = uuid.NewString()
	secure := strings.EqualFold(a.cfg.Env, "production")
	c.SetCookie(deviceCookieName, deviceID, int(deviceCookieMaxAge.Seconds()), "/", "", secure, true)
	c.Set(deviceContextKey, deviceID)
	return deviceID
}

// reportStoreFor opens the collection of the requesting browser, or the
// shared one when STORE_SCOPE=shared.
func (a *App) reportStoreFor(c *gin.Context) *ReportStore {
	var deviceID string
	if a.cfg.StoreScope != storeScopeShared {
		deviceID = a.ensureDeviceID(c)
	}
	key := reportStorageKey(a.cfg.StoreScope, deviceID)
	return NewReportStore(a.kv, key, a.clock, a.log.With("store_key", key))
}
