package handler

import (
	"net/http"

	"taskboard-server/internal/middleware"
	"taskboard-server/internal/service"
	"taskboard-server/pkg/response"

	"github.com/sirupsen/logrus"
)

type UserHandler struct {
	userService *service.UserService
	log         logrus.FieldLogger
}

func NewUserHandler(userService *service.UserService, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{
		userService: userService,
		log:         log,
	}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Unauthorized request")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, map[string]interface{}{"user": user})
}
