package middleware

import (
	"bytes"
	"encoding/base64"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	dbpkg "idgate/internal/db"
)

var basicPrefix = []byte("Basic ")

// AdminAuth protects the key-management endpoints with HTTP Basic
// credentials checked against the admin_users table.
func AdminAuth(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")
			if !bytes.HasPrefix(auth, basicPrefix) {
				requireAuth(ctx)
				return
			}

			decoded, err := base64.StdEncoding.DecodeString(string(auth[len(basicPrefix):]))
			if err != nil {
				requireAuth(ctx)
				return
			}
			sep := bytes.IndexByte(decoded, ':')
			if sep < 0 {
				requireAuth(ctx)
				return
			}
			username, password := string(decoded[:sep]), string(decoded[sep+1:])

			var admin dbpkg.AdminUser
			if err := db.Where("username = ?", username).First(&admin).Error; err != nil {
				requireAuth(ctx)
				return
			}
			if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
				requireAuth(ctx)
				return
			}

			next(ctx)
		}
	}
}

func requireAuth(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="idgate admin"`)
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetBodyString("unauthorized")
}
