package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/parlorgames/quizmatch/backend/internal/match"
	"github.com/parlorgames/quizmatch/backend/internal/quiz"
	"go.uber.org/zap"
)

const userIDContextKey = "quizmatch_user_id"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingMatchService = errors.New("match service dependency required")
	errMissingQuizService  = errors.New("quiz service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates bearer tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// ActivityRecorder stamps a user as active; every authenticated request
// refreshes their presence.
type ActivityRecorder interface {
	Touch(ctx context.Context, userID string) error
}

// Dependencies wires the HTTP surface to its collaborators.
type Dependencies struct {
	TokenManager TokenManager
	MatchService *match.Service
	QuizService  *quiz.Service
	Presence     ActivityRecorder
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the matchmaking API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.MatchService == nil {
		return nil, errMissingMatchService
	}
	if deps.QuizService == nil {
		return nil, errMissingQuizService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.TokenManager,
		matchService: deps.MatchService,
		quizService:  deps.QuizService,
		presence:     deps.Presence,
		logger:       logger,
	}

	router.POST("/auth/token", handler.handleIssueToken)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.Use(handler.recordActivity)
	protected.POST("/quizzes", handler.handleCreateQuiz)
	protected.GET("/quizzes", handler.handleListQuizzes)
	protected.POST("/quizzes/:quiz_id/match", handler.handleFindMatch)
	protected.GET("/matches/:match_id", handler.handleCheckMatch)
	protected.POST("/matches/:match_id/score", handler.handleWriteScore)

	return router, nil
}

type httpHandler struct {
	tokens       TokenManager
	matchService *match.Service
	quizService  *quiz.Service
	presence     ActivityRecorder
	logger       *zap.Logger
}

type tokenRequestPayload struct {
	UserID string `json:"user_id"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleIssueToken(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), strings.TrimSpace(request.UserID))
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type createQuizPayload struct {
	Title string `json:"title"`
	Topic string `json:"topic"`
}

type quizResponsePayload struct {
	QuizID    string `json:"quiz_id"`
	Title     string `json:"title"`
	Topic     string `json:"topic"`
	CreatedAt int64  `json:"created_at_s"`
}

func (h *httpHandler) handleCreateQuiz(c *gin.Context) {
	var request createQuizPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	created, err := h.quizService.Create(c.Request.Context(), request.Title, request.Topic)
	if err != nil {
		h.logger.Error("failed to create quiz", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quiz_create_failed"})
		return
	}

	c.JSON(http.StatusCreated, quizResponse(*created))
}

func (h *httpHandler) handleListQuizzes(c *gin.Context) {
	quizzes, err := h.quizService.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list quizzes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quiz_list_failed"})
		return
	}
	response := make([]quizResponsePayload, 0, len(quizzes))
	for _, q := range quizzes {
		response = append(response, quizResponse(q))
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": response})
}

func quizResponse(q quiz.Quiz) quizResponsePayload {
	return quizResponsePayload{
		QuizID:    q.ID,
		Title:     q.Title,
		Topic:     q.Topic,
		CreatedAt: q.CreatedAt.Unix(),
	}
}

type resolutionResponsePayload struct {
	Status  string `json:"status"`
	MatchID string `json:"match_id"`
}

func (h *httpHandler) handleFindMatch(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}
	quizID, err := match.NewQuizID(c.Param("quiz_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quiz_id"})
		return
	}

	resolution, err := h.matchService.FindOrCreateMatch(c.Request.Context(), userID, quizID)
	if err != nil {
		h.renderMatchError(c, "match_failed", err)
		return
	}

	c.JSON(http.StatusOK, resolutionResponsePayload{
		Status:  string(resolution.State),
		MatchID: resolution.MatchID,
	})
}

func (h *httpHandler) handleCheckMatch(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}
	matchID, err := match.NewMatchID(c.Param("match_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_match_id"})
		return
	}

	resolution, err := h.matchService.CheckMatch(c.Request.Context(), userID, matchID)
	if err != nil {
		h.renderMatchError(c, "match_check_failed", err)
		return
	}

	c.JSON(http.StatusOK, resolutionResponsePayload{
		Status:  string(resolution.State),
		MatchID: resolution.MatchID,
	})
}

type writeScorePayload struct {
	Score *int `json:"score"`
}

type matchResponsePayload struct {
	MatchID      string `json:"match_id"`
	QuizID       string `json:"quiz_id"`
	Status       string `json:"status"`
	Player1ID    string `json:"player1_id"`
	Player2ID    *string `json:"player2_id,omitempty"`
	Player1Score *int   `json:"player1_score,omitempty"`
	Player2Score *int   `json:"player2_score,omitempty"`
	CompletedAt  *int64 `json:"completed_at_s,omitempty"`
}

func (h *httpHandler) handleWriteScore(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}
	matchID, err := match.NewMatchID(c.Param("match_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_match_id"})
		return
	}
	var request writeScorePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Score == nil || *request.Score < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_score"})
		return
	}

	updated, err := h.matchService.WriteScore(c.Request.Context(), matchID, userID, *request.Score)
	if err != nil {
		h.renderMatchError(c, "score_write_failed", err)
		return
	}

	response := matchResponsePayload{
		MatchID:      updated.ID,
		QuizID:       updated.QuizID,
		Status:       string(updated.Status),
		Player1ID:    updated.Player1ID,
		Player2ID:    updated.Player2ID,
		Player1Score: updated.Player1Score,
		Player2Score: updated.Player2Score,
	}
	if updated.CompletedAt != nil {
		completedAt := updated.CompletedAt.Unix()
		response.CompletedAt = &completedAt
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) renderMatchError(c *gin.Context, fallback string, err error) {
	switch {
	case errors.Is(err, match.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "quiz_not_found"})
	case errors.Is(err, match.ErrMatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "match_not_found"})
	case errors.Is(err, match.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, match.ErrMatchCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "match_completed"})
	case errors.Is(err, match.ErrMatchNotStarted):
		c.JSON(http.StatusConflict, gin.H{"error": "match_not_started"})
	default:
		h.logger.Error("match request failed", zap.Error(err))
		body := gin.H{"error": fallback}
		var serviceErr *match.ServiceError
		if errors.As(err, &serviceErr) {
			body["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

func (h *httpHandler) requestUserID(c *gin.Context) (match.UserID, bool) {
	raw := c.GetString(userIDContextKey)
	userID, err := match.NewUserID(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// recordActivity marks the caller online. A presence write failure is logged
// but never fails the request.
func (h *httpHandler) recordActivity(c *gin.Context) {
	if h.presence != nil {
		userID := c.GetString(userIDContextKey)
		if userID != "" {
			if err := h.presence.Touch(c.Request.Context(), userID); err != nil {
				h.logger.Warn("presence touch failed", zap.Error(err), zap.String("user_id", userID))
			}
		}
	}
	c.Next()
}
