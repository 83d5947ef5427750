// Package server assembles the HTTP surface.
package server

import (
	"net/http"

	"taskboard-server/internal/config"
	"taskboard-server/internal/handler"
	"taskboard-server/internal/middleware"
	"taskboard-server/internal/service"
	"taskboard-server/internal/websocket"
	"taskboard-server/pkg/response"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Config    *config.Config
	Auth      *service.AuthService
	Users     *service.UserService
	Tasks     *service.TaskService
	WebSocket *websocket.Manager
	Log       logrus.FieldLogger
}

func NewRouter(d Deps) *mux.Router {
	authHandler := handler.NewAuthHandler(d.Auth, d.Config.Cookie, d.Log)
	userHandler := handler.NewUserHandler(d.Users, d.Log)
	taskHandler := handler.NewTaskHandler(d.Tasks, d.Log)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(d.Log))
	r.Use(middleware.RecoverMiddleware(d.Log))
	r.Use(middleware.CORSMiddleware(d.Config.CORS))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/users/register", authHandler.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/users/login", authHandler.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/users/refresh", authHandler.Refresh).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(d.Auth))

	protected.HandleFunc("/users/logout", authHandler.Logout).Methods("POST", "OPTIONS")
	protected.HandleFunc("/users/me", userHandler.GetMe).Methods("GET", "OPTIONS")

	protected.HandleFunc("/tasks", taskHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/tasks", taskHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/tasks/{id}", taskHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/tasks/{id}", taskHandler.Update).Methods("PUT", "PATCH", "OPTIONS")
	protected.HandleFunc("/tasks/{id}", taskHandler.Delete).Methods("DELETE", "OPTIONS")

	if d.WebSocket != nil {
		wsHandler := handler.NewWebSocketHandler(d.WebSocket, d.Auth, d.Log)
		r.HandleFunc("/ws", wsHandler.HandleConnection)
	}

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "Route not found")
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{
		"status":  "healthy",
		"service": "taskboard-server",
	})
}
