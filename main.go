package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/cors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/taskflow-app/taskflow/database"
	"github.com/taskflow-app/taskflow/handlers"
	"github.com/taskflow-app/taskflow/services"
)

func main() {
	// Load environment variables from .env file, if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Error loading .env file: %v", err)
	}

	// Rotate server logs when a log file is configured
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	// Initialize database
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./taskflow.db"
	}
	db, err := database.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := services.NewAuthService()
	dataService := database.NewDataService(db)

	// Initialize WebSocket hub
	hub := services.NewHub()
	go hub.Run()

	// Without the service key every mutation endpoint fails closed
	serviceKey := os.Getenv("TASKFLOW_SERVICE_KEY")
	if serviceKey == "" {
		log.Println("Warning: TASKFLOW_SERVICE_KEY not set, mutation endpoints are disabled")
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, dataService)
	dataHandler := handlers.NewDataHandler(dataService, authService, hub, serviceKey)
	authMiddleware := handlers.NewAuthMiddleware(authService)

	// Setup router
	r := mux.NewRouter()

	// Auth routes
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/auth/verify", authHandler.VerifyToken).Methods("GET")
	r.HandleFunc("/api/auth/magic-link", authHandler.HandleMagicLink).Methods("GET")

	// Data routes (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Auth)

	api.HandleFunc("/projects", dataHandler.GetProjects).Methods("GET")
	api.HandleFunc("/projects", dataHandler.CreateProject).Methods("POST")
	api.HandleFunc("/projects", dataHandler.UpdateProject).Methods("PUT")
	api.HandleFunc("/projects", dataHandler.DeleteProject).Methods("DELETE")

	api.HandleFunc("/tasks", dataHandler.GetTasks).Methods("GET")
	api.HandleFunc("/tasks", dataHandler.CreateTask).Methods("POST")
	api.HandleFunc("/tasks", dataHandler.UpdateTask).Methods("PUT")
	api.HandleFunc("/tasks", dataHandler.DeleteTask).Methods("DELETE")

	api.HandleFunc("/task-tags", dataHandler.AddTaskTag).Methods("POST")
	api.HandleFunc("/task-tags", dataHandler.RemoveTaskTag).Methods("DELETE")

	api.HandleFunc("/comments", dataHandler.GetComments).Methods("GET")
	api.HandleFunc("/comments", dataHandler.CreateComment).Methods("POST")

	api.HandleFunc("/profile", dataHandler.GetProfile).Methods("GET")
	api.HandleFunc("/profile", dataHandler.ReplaceProfile).Methods("PUT")
	api.HandleFunc("/profile", dataHandler.PatchProfile).Methods("PATCH")

	// WebSocket route for real-time updates
	api.HandleFunc("/ws", dataHandler.HandleWebSocket)

	// Static file server for frontend
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./")))

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // In production, change to your domain
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Server starting on port %s", port)
	log.Fatal(server.ListenAndServe())
}
