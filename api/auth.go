package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

type RequestClaims struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
}

func parseJWT(jwtStr string, secret string) (*RequestClaims, error) {
	token, err := jwt.Parse(jwtStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("failed to parse claims")
	}
	// exp is enforced by MapClaims.Valid when present, but every caller
	// must send one
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("token has no expiry")
	}
	sub, _ := claims["sub"].(string)

	return &RequestClaims{
		Subject:   sub,
		ExpiresAt: int64(exp),
	}, nil
}

// authMiddleware checks a bearer HS256 token. an empty secret disables it
func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			returnErrorJsonCode(fmt.Errorf("missing bearer token"), c, 401)
			return
		}
		claims, err := parseJWT(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			returnErrorJsonCode(err, c, 401)
			return
		}

		c.Set("userID", claims.Subject)
		c.Next()
	}
}
