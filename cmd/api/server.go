package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signflow/agreement"
	"signflow/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const ctxActor = "actor"

// agreementService is the slice of the lifecycle engine the API consumes.
type agreementService interface {
	Create(ctx context.Context, actor agreement.Actor, params agreement.CreateParams) (agreement.Agreement, error)
	RequestTransition(ctx context.Context, actor agreement.Actor, id int64, target agreement.Status) (agreement.Agreement, error)
	Get(ctx context.Context, actor agreement.Actor, id int64) (agreement.Agreement, error)
	ListForUser(ctx context.Context, actor agreement.Actor) ([]agreement.Agreement, error)
	AuditTrail(ctx context.Context, id int64) ([]agreement.EnrichedAuditEntry, error)
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (auth.LoginResult, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	VerifyToken(token string) (auth.Identity, error)
}

type uploadStore interface {
	Save(originalName string, r io.Reader) (string, error)
	Dir() string
}

// Server wires HTTP routes to the domain services.
type Server struct {
	log        *logrus.Logger
	agreements agreementService
	auth       authService
	uploads    uploadStore
}

// NewServer builds the API server over its collaborators.
func NewServer(log *logrus.Logger, agreements agreementService, authSvc authService, uploads uploadStore) *Server {
	return &Server{
		log:        log,
		agreements: agreements,
		auth:       authSvc,
		uploads:    uploads,
	}
}

// Router assembles the gin engine: request logging, public auth routes,
// token-guarded agreement routes, and static serving of stored uploads.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.Static("/uploads", s.uploads.Dir())

	api := r.Group("/api")
	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)

	authed := api.Group("/")
	authed.Use(s.requireAuth())
	authed.GET("/auth/user", s.handleCurrentUser)
	authed.GET("/agreements", s.handleListAgreements)
	authed.POST("/agreements", s.handleCreateAgreement)
	authed.GET("/agreements/:id", s.handleGetAgreement)
	authed.PATCH("/agreements/:id/status", s.handleUpdateStatus)
	authed.GET("/agreements/:id/audit", s.handleAuditTrail)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return r
}

// requestLogger tags every request with an id and logs method, path,
// status, and duration.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Info("request")
	}
}

// requireAuth resolves the caller from the bearer token and stores the
// actor for handlers. Every downstream call receives the actor explicitly.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
			return
		}

		identity, err := s.auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}

		c.Set(ctxActor, agreement.Actor{ID: identity.UserID, Email: identity.Email})
		c.Next()
	}
}

func actorFrom(c *gin.Context) agreement.Actor {
	actor, _ := c.MustGet(ctxActor).(agreement.Actor)
	return actor
}

func (s *Server) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	result, err := s.auth.Register(c.Request.Context(), req)
	if err != nil {
		s.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, loginResponseFrom(result))
}

func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	result, err := s.auth.Login(c.Request.Context(), req)
	if err != nil {
		s.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponseFrom(result))
}

func (s *Server) handleCurrentUser(c *gin.Context) {
	actor := actorFrom(c)
	user, err := s.auth.GetUserByID(c.Request.Context(), actor.ID)
	if err != nil {
		s.respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponseFrom(*user))
}

func (s *Server) handleListAgreements(c *gin.Context) {
	items, err := s.agreements.ListForUser(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.respondAgreementError(c, err)
		return
	}

	out := make([]agreementResponse, 0, len(items))
	for _, item := range items {
		out = append(out, agreementResponseFrom(item))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateAgreement(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no file uploaded", "field": "file"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		s.respondAgreementError(c, err)
		return
	}
	defer src.Close()

	fileURL, err := s.uploads.Save(fileHeader.Filename, src)
	if err != nil {
		s.respondAgreementError(c, err)
		return
	}

	created, err := s.agreements.Create(c.Request.Context(), actorFrom(c), agreement.CreateParams{
		Title:       c.PostForm("title"),
		SignerEmail: c.PostForm("signerEmail"),
		FileURL:     fileURL,
	})
	if err != nil {
		s.respondAgreementError(c, err)
		return
	}

	c.JSON(http.StatusCreated, agreementResponseFrom(created))
}

func (s *Server) handleGetAgreement(c *gin.Context) {
	id, ok := agreementID(c)
	if !ok {
		return
	}

	found, err := s.agreements.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		s.respondAgreementError(c, err)
		return
	}

	c.JSON(http.StatusOK, agreementResponseFrom(found))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	id, ok := agreementID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	updated, err := s.agreements.RequestTransition(c.Request.Context(), actorFrom(c), id, agreement.Status(req.Status))
	if err != nil {
		s.respondAgreementError(c, err)
		return
	}

	c.JSON(http.StatusOK, agreementResponseFrom(updated))
}

func (s *Server) handleAuditTrail(c *gin.Context) {
	id, ok := agreementID(c)
	if !ok {
		return
	}

	entries, err := s.agreements.AuditTrail(c.Request.Context(), id)
	if err != nil {
		s.respondAgreementError(c, err)
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, auditEntryResponseFrom(entry))
	}
	c.JSON(http.StatusOK, out)
}

func agreementID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Agreement not found"})
		return 0, false
	}
	return id, true
}

func (s *Server) respondAgreementError(c *gin.Context, err error) {
	var validation *agreement.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"message": validation.Message, "field": validation.Field})
	case errors.Is(err, agreement.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Agreement not found"})
	case errors.Is(err, agreement.ErrSenderOnly):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Only sender can send agreement"})
	case errors.Is(err, agreement.ErrSignerOnly):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Only designated signer can sign"})
	case errors.Is(err, agreement.ErrAccessDenied):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized access to this agreement"})
	default:
		s.log.WithError(err).Error("agreement request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	}
}

func (s *Server) respondAuthError(c *gin.Context, err error) {
	var validation *auth.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"message": validation.Message, "field": validation.Field})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid email or password"})
	case errors.Is(err, auth.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"message": "password must be at least 8 characters", "field": "password"})
	case errors.Is(err, auth.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"message": "email already registered", "field": "email"})
	case errors.Is(err, auth.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
	default:
		s.log.WithError(err).Error("auth request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	}
}
