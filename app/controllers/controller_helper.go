package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/app/repository"
	"github.com/globalnexus/streamvault/internal/pkg/usercontext"
)

// Session keys set at login. The canonical values live in usercontext so the
// middleware and the controllers cannot drift apart.
const (
	AUTH_KEY       string = usercontext.SessionAuthenticated
	USER_ID        string = usercontext.SessionUserID
	USER_NAME      string = usercontext.SessionUsername
	USER_IS_ADMIN  string = usercontext.SessionIsAdmin
	FROM_PROTECTED string = usercontext.LocalsFromProtected
)

// currentUser loads the full user record for the logged-in session.
func currentUser(c *fiber.Ctx) (*models.User, error) {
	userID := usercontext.GetUserID(c)
	if userID == 0 {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "login required")
	}
	return repository.GetGlobalRepositories().User.GetByID(userID)
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

// GetClientIP determines the actual client IP address considering proxies and dual stack
// Returns both IPv4 and IPv6 addresses if available
func GetClientIP(c *fiber.Ctx) (string, string) {
	ipv4 := ""
	ipv6 := ""

	// 1. Check for Cloudflare header
	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		if strings.Contains(cfIP, ":") {
			ipv6 = cfIP
			for _, ip := range strings.Split(c.Get("X-Forwarded-For"), ",") {
				ip = strings.TrimSpace(ip)
				if ip != "" && !strings.Contains(ip, ":") {
					ipv4 = ip
					break
				}
			}
		} else {
			ipv4 = cfIP
			for _, ip := range strings.Split(c.Get("X-Forwarded-For"), ",") {
				ip = strings.TrimSpace(ip)
				if strings.Contains(ip, ":") {
					ipv6 = ip
					break
				}
			}
		}
		return ipv4, ipv6
	}

	// 2. Check for X-Forwarded-For header (standard proxy header)
	xff := c.Get("X-Forwarded-For")
	if xff != "" {
		xffList := strings.Split(xff, ",")
		clientIP := strings.TrimSpace(xffList[0])
		if strings.Contains(clientIP, ":") {
			ipv6 = clientIP
			for i := 1; i < len(xffList); i++ {
				ip := strings.TrimSpace(xffList[i])
				if !strings.Contains(ip, ":") {
					ipv4 = ip
					break
				}
			}
		} else {
			ipv4 = clientIP
			for i := 1; i < len(xffList); i++ {
				ip := strings.TrimSpace(xffList[i])
				if strings.Contains(ip, ":") {
					ipv6 = ip
					break
				}
			}
		}
		if ipv4 != "" || ipv6 != "" {
			return ipv4, ipv6
		}
	}

	// 3. If no proxy headers were found, use the connection address
	ipAddr := c.IP()
	if strings.Contains(ipAddr, ":") {
		if strings.Contains(ipAddr, ".") && strings.HasPrefix(ipAddr, "::ffff:") {
			// IPv4 address in IPv6 mapping (::ffff:192.168.1.1)
			ipv4 = strings.TrimPrefix(ipAddr, "::ffff:")
		} else {
			ipv6 = ipAddr
		}
	} else {
		ipv4 = ipAddr
	}

	return ipv4, ipv6
}
