package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Роли акторов, которые присылает слой аутентификации
const (
	RoleTutor   = "tutor"
	RoleLearner = "learner"
)

// Actor — аутентифицированный пользователь запроса.
// Движок сам никого не аутентифицирует: личность и роль
// приходят из подписанного токена внешнего слоя.
type Actor struct {
	ID   int64
	Role string
}

const actorContextKey = "actor"

// AuthMiddleware извлекает актора из Bearer JWT (HMAC).
// Claims: sub — id пользователя, role — tutor или learner.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(secret), nil
		}, jwt.WithLeeway(5*time.Second))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		sub, err := claims.GetSubject()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			return
		}

		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			return
		}

		role, _ := claims["role"].(string)
		if role != RoleTutor && role != RoleLearner {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token role"})
			return
		}

		c.Set(actorContextKey, Actor{ID: id, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) Actor {
	v, _ := c.Get(actorContextKey)
	actor, _ := v.(Actor)
	return actor
}

// requireTutor отклоняет запрос, если актор — не репетитор
func requireTutor(c *gin.Context) (Actor, bool) {
	actor := actorFrom(c)
	if actor.Role != RoleTutor {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return actor, false
	}
	return actor, true
}
