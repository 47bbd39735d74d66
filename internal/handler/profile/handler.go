package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/hirestream/backend/internal/service/ai"
	"github.com/zhouzirui/hirestream/backend/pkg/utils"
)

// Handler 列出可用的生成服务配置
type Handler struct {
	profiles []ai.Profile
}

// New 创建profile处理器
func New(profiles []ai.Profile) *Handler {
	return &Handler{profiles: profiles}
}

// RegisterRoutes 注册profile相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles", h.handleListProfiles)
}

// handleListProfiles 列出所有profile
func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.profiles)
}
