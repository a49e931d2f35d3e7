package httpserver

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SidineiMarcelo/ia-transformers/internal/license"
)

const (
	headerLicenseKey = "x-license-key"
	headerOpenAIKey  = "x-openai-key"
)

type errorBody struct {
	Error string `json:"error"`
}

// LicenseAuth rejects requests whose x-license-key is missing, unknown
// or suspended.
func LicenseAuth(gate license.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(headerLicenseKey)
			status, err := gate.Check(key)
			if err != nil {
				log.Printf("license check failed: %v", err)
				return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "não foi possível validar a licença"})
			}
			if status != license.StatusAuthorized {
				return c.JSON(http.StatusForbidden, errorBody{Error: "licença inválida ou suspensa"})
			}
			return next(c)
		}
	}
}
