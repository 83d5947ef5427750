package handler

import (
	"net/http"

	"taskboard-server/internal/domain"
	"taskboard-server/internal/middleware"
	"taskboard-server/internal/service"
	"taskboard-server/pkg/response"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type TaskHandler struct {
	taskService *service.TaskService
	log         logrus.FieldLogger
}

func NewTaskHandler(taskService *service.TaskService, log logrus.FieldLogger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		log:         log,
	}
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized request")
		return
	}

	filter := domain.TaskFilter{
		Status:   domain.TaskStatus(r.URL.Query().Get("status")),
		Priority: domain.TaskPriority(r.URL.Query().Get("priority")),
	}

	tasks, err := h.taskService.List(r.Context(), user, filter)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, tasks)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized request")
		return
	}

	var req domain.CreateTaskRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	task, err := h.taskService.Create(r.Context(), user, &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Created(w, task)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized request")
		return
	}

	task, err := h.taskService.Get(r.Context(), user, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, task)
}

// Update serves both PUT and PATCH; omitted fields are left unchanged.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized request")
		return
	}

	var req domain.UpdateTaskRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	task, err := h.taskService.Update(r.Context(), user, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized request")
		return
	}

	if err := h.taskService.Delete(r.Context(), user, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Message(w, http.StatusOK, nil, "Task deleted")
}
