package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/hirestream/backend/internal/model/chat"
	"github.com/zhouzirui/hirestream/backend/internal/observability"
	"github.com/zhouzirui/hirestream/backend/internal/service/ai"
	"github.com/zhouzirui/hirestream/backend/pkg/utils"
)

// Generator returns a complete response for a profile.
type Generator interface {
	Generate(ctx context.Context, profile ai.Profile, payload chat.Payload) (*schema.Message, error)
}

// Handler 一次性生成接口（不经过会话中转）
type Handler struct {
	generator  Generator
	candidates ai.Profile
}

// Option configures a Handler.
type Option func(*Handler)

// WithCandidateProfile overrides the profile used by candidate search, e.g.
// to apply the configured top-k.
func WithCandidateProfile(profile ai.Profile) Option {
	return func(h *Handler) {
		h.candidates = profile
	}
}

// New 创建一次性生成处理器
func New(generator Generator, opts ...Option) *Handler {
	h := &Handler{generator: generator, candidates: ai.CandidateSearch}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册一次性生成相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/job-description/generate-from-task", h.handleJobDescription)
	r.Post("/action-plan/generate-plan", h.handleActionPlan)
	r.Post("/candidates/search", h.handleCandidateSearch)
}

type taskRequest struct {
	Task string `json:"task"`
}

// handleJobDescription 根据任务列表生成职位描述，返回纯文本
func (h *Handler) handleJobDescription(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Task) == "" {
		utils.RespondText(w, http.StatusBadRequest, "Missing prompt")
		return
	}

	reply, err := h.generator.Generate(r.Context(), ai.JobDescription, chat.Payload{Prompt: req.Task})
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("job description generation failed", "error", err)
		utils.RespondText(w, http.StatusInternalServerError, "Error while generating prompt")
		return
	}
	utils.RespondText(w, http.StatusOK, reply.Content)
}

type planRequest struct {
	Prompt string `json:"prompt"`
}

type planResponse struct {
	Messages string `json:"messages"`
	Data     string `json:"data"`
}

// handleActionPlan 生成学生职业行动计划，返回JSON
func (h *Handler) handleActionPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		utils.RespondError(w, http.StatusBadRequest, "Missing Prompt")
		return
	}

	reply, err := h.generator.Generate(r.Context(), ai.ActionPlan, chat.Payload{Prompt: req.Prompt})
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("action plan generation failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "Error while generating prompt")
		return
	}
	utils.RespondJSON(w, http.StatusOK, planResponse{Messages: "Data generated successfully", Data: reply.Content})
}

type searchRequest struct {
	JobDescription string `json:"jobDescription"`
}

// handleCandidateSearch 按职位描述检索并推荐候选人，返回纯文本
func (h *Handler) handleCandidateSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.JobDescription) == "" {
		utils.RespondText(w, http.StatusBadRequest, "Missing job description")
		return
	}

	reply, err := h.generator.Generate(r.Context(), h.candidates, chat.Payload{Prompt: req.JobDescription})
	if err != nil {
		logger := observability.LoggerFromContext(r.Context())
		if errors.Is(err, ai.ErrEmptyResponse) {
			logger.Warn("candidate search returned nothing")
			utils.RespondText(w, http.StatusInternalServerError, "Error while loading candidates")
			return
		}
		logger.Error("candidate search failed", "error", err)
		utils.RespondText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	utils.RespondText(w, http.StatusOK, reply.Content)
}
