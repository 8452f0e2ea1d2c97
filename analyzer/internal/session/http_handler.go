package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// HTTPHandler обрабатывает HTTP запросы для управления сессиями (Presentation Layer)
type HTTPHandler struct {
	manager *Manager
}

// NewHTTPHandler создает новый HTTP обработчик
func NewHTTPHandler(manager *Manager) *HTTPHandler {
	return &HTTPHandler{
		manager: manager,
	}
}

// RegisterRoutes регистрирует маршруты в роутере
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/sessions").Subrouter()

	api.HandleFunc("", h.CreateSession).Methods("POST")
	api.HandleFunc("", h.ListSessions).Methods("GET")
	api.HandleFunc("/analyze", h.Analyze).Methods("POST")
	api.HandleFunc("/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/{id}/stop", h.StopSession).Methods("POST")
	api.HandleFunc("/{id}/save", h.SaveSession).Methods("POST")
	api.HandleFunc("/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/{id}/beats", h.GetBeats).Methods("GET")
	api.HandleFunc("/{id}/intervals", h.GetIntervals).Methods("GET")
	api.HandleFunc("/{id}/data", h.GetSessionData).Methods("GET")
}

// CreateSession создает новую сессию
// @Summary Создать сессию
// @Description Создает живую сессию; отсчеты принимаются через NATS
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Параметры сессии"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/sessions [post]
func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.manager.CreateSession(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[ERROR] Failed to create session: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	respondJSON(w, http.StatusCreated, SessionResponse{Session: session})
}

// ListSessions возвращает список сессий
// @Summary Список сохраненных сессий
// @Tags Sessions
// @Produce json
// @Param limit query int false "Лимит" default(50)
// @Param offset query int false "Смещение" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions [get]
func (h *HTTPHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := getQueryInt(r, "limit", 50)
	offset := getQueryInt(r, "offset", 0)

	sessions, err := h.manager.ListSessions(r.Context(), limit, offset)
	if err != nil {
		log.Printf("[ERROR] Failed to list sessions: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
		"count":    len(sessions),
	})
}

// GetSession получает информацию о сессии
// @Summary Информация о сессии
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id} [get]
func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := h.manager.GetSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	// Результата коррекции нет, пока сессия активна
	analysis, _ := h.manager.GetAnalysis(r.Context(), sessionID)

	respondJSON(w, http.StatusOK, SessionResponse{
		Session:  session,
		Analysis: analysis,
	})
}

// StopSession останавливает сессию
// @Summary Остановить сессию
// @Description Закрывает поток детекции, корректирует RR-интервалы и архивирует сессию
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} Analysis
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/sessions/{id}/stop [post]
func (h *HTTPHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	analysis, err := h.manager.StopSession(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, ErrSessionNotActive):
			respondError(w, http.StatusConflict, "Session is not active")
		default:
			log.Printf("[ERROR] Failed to stop session %s: %v", sessionID, err)
			respondError(w, http.StatusInternalServerError, "Failed to stop session")
		}
		return
	}

	respondJSON(w, http.StatusOK, analysis)
}

// SaveSession сохраняет сессию в базу данных
// @Summary Сохранить сессию
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body SaveSessionRequest false "Заметки"
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions/{id}/save [post]
func (h *HTTPHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req SaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Не критично, если нет body
		req = SaveSessionRequest{}
	}

	if err := h.manager.SaveSession(r.Context(), sessionID, req.Notes); err != nil {
		if errors.Is(err, ErrSessionNotActive) {
			respondError(w, http.StatusConflict, "Session must be stopped first")
			return
		}
		log.Printf("[ERROR] Failed to save session %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "Failed to save session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session saved successfully",
		"session_id": sessionID,
	})
}

// DeleteSession удаляет сессию
// @Summary Удалить сессию
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions/{id} [delete]
func (h *HTTPHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.DeleteSession(r.Context(), sessionID); err != nil {
		log.Printf("[ERROR] Failed to delete session %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session deleted successfully",
		"session_id": sessionID,
	})
}

// GetBeats возвращает удары сессии
// @Summary Удары сессии
// @Tags Beats
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {array} BeatRecord
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/beats [get]
func (h *HTTPHandler) GetBeats(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	beats, err := h.manager.GetBeats(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Beats not found")
		return
	}

	respondJSON(w, http.StatusOK, beats)
}

// GetIntervals возвращает скорректированные RR-интервалы и отчет коррекции
// @Summary RR-интервалы сессии
// @Tags Beats
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} Analysis
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/intervals [get]
func (h *HTTPHandler) GetIntervals(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	analysis, err := h.manager.GetAnalysis(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Intervals not found")
		return
	}

	respondJSON(w, http.StatusOK, analysis)
}

// GetSessionData получает все данные сессии
// @Summary Все данные сессии
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} SessionData
// @Router /api/sessions/{id}/data [get]
func (h *HTTPHandler) GetSessionData(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	data, err := h.manager.GetSessionData(r.Context(), sessionID)
	if err != nil {
		log.Printf("[ERROR] Failed to get session data %s: %v", sessionID, err)
		respondError(w, http.StatusNotFound, "Session data not found")
		return
	}

	respondJSON(w, http.StatusOK, data)
}

// Analyze пакетный анализ записи
// @Summary Анализ записи
// @Description Детекция ударов по записи целиком и коррекция RR-интервалов
// @Tags Offline Analysis
// @Accept json
// @Produce json
// @Param request body AnalyzeRequest true "Запись: частота и отсчеты по отведениям"
// @Success 200 {object} SessionData
// @Failure 400 {object} map[string]interface{}
// @Router /api/sessions/analyze [post]
func (h *HTTPHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	data, err := h.manager.Analyze(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[ERROR] Failed to analyze recording: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to analyze recording")
		return
	}

	respondJSON(w, http.StatusOK, data)
}

// ===== Утилиты =====

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[ERROR] Failed to encode JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}

func getQueryInt(r *http.Request, key string, defaultValue int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
