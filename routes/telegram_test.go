package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"landmarket-server/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// buildCleanupTestApp wires only the admin cleanup route with the real JWT
// verifier and admin gate; the handler behind it is stubbed so no database is
// needed.
func buildCleanupTestApp() *iris.Application {
	os.Setenv("ACCESS_TOKEN_SECRET", "testsecret")
	app := iris.New()

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Post("/telegram/cleanup", func(ctx iris.Context) {
			ctx.JSON(iris.Map{"ok": true})
		})
	}
	return app
}

func signTestToken(role string) string {
	signer := jwt.NewSigner(jwt.HS256, os.Getenv("ACCESS_TOKEN_SECRET"), 0)
	token, _ := signer.Sign(utils.AccessToken{ID: 1, Role: role})
	return string(token)
}

func TestAdminCleanupRBAC(t *testing.T) {
	app := buildCleanupTestApp()
	if err := app.Build(); err != nil {
		t.Fatalf("app build failed: %v", err)
	}

	// No token
	req := httptest.NewRequest(http.MethodPost, "/api/admin/telegram/cleanup", strings.NewReader("{}"))
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	if resp.Code == http.StatusOK {
		t.Fatalf("expected non-200 without token, got %d", resp.Code)
	}

	// Non-admin role
	req2 := httptest.NewRequest(http.MethodPost, "/api/admin/telegram/cleanup", strings.NewReader("{}"))
	req2.Header.Set("Authorization", "Bearer "+signTestToken("landowner"))
	resp2 := httptest.NewRecorder()
	app.ServeHTTP(resp2, req2)
	if resp2.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for landowner role, got %d", resp2.Code)
	}

	// Admin role
	req3 := httptest.NewRequest(http.MethodPost, "/api/admin/telegram/cleanup", strings.NewReader("{}"))
	req3.Header.Set("Authorization", "Bearer "+signTestToken("admin"))
	resp3 := httptest.NewRecorder()
	app.ServeHTTP(resp3, req3)
	if resp3.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin role, got %d", resp3.Code)
	}
}
