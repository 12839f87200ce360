package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/char5742/touchpad-frames/internal/config"
)

// ルートの設定
func (s *Server) setupRoutes(router *http.ServeMux) {
	// ライブビュー
	router.HandleFunc("GET /api/touches", s.handleGetTouches)

	// 設定関連のエンドポイント
	router.HandleFunc("GET /api/config", s.handleGetConfig)
	router.HandleFunc("POST /api/config/save", s.handleSaveConfig)
	router.HandleFunc("PUT /api/palm", s.handleSetPalm)

	// デバイス関連のエンドポイント
	router.HandleFunc("GET /api/devices", s.handleGetDevices)
	router.HandleFunc("POST /api/touchpad/suspend", s.handleSuspend)
	router.HandleFunc("POST /api/touchpad/resume", s.handleResume)

	// サービス関連のエンドポイント
	router.HandleFunc("POST /api/service/start", s.handleStartService)
	router.HandleFunc("POST /api/service/stop", s.handleStopService)
	router.HandleFunc("GET /api/service/status", s.handleServiceStatus)

	// ヘルスチェック用エンドポイント
	router.HandleFunc("GET /api/health", s.handleHealthCheck)
}

// タッチ状態取得ハンドラ
func (s *Server) handleGetTouches(w http.ResponseWriter, r *http.Request) {
	if !s.service.IsRunning() && s.service.View().Device == "" {
		writeError(w, http.StatusServiceUnavailable, "サービスは実行されていません")
		return
	}
	writeJSON(w, http.StatusOK, s.service.View())
}

// 設定取得ハンドラ
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetConfig())
}

// 設定保存ハンドラ
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	configPath := s.configPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := s.GetConfig()
	if err := config.SaveConfig(configPath, &cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "設定の保存に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   configPath,
	})
}

// 手のひら判定設定ハンドラ
func (s *Server) handleSetPalm(w http.ResponseWriter, r *http.Request) {
	var request PalmSettings
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	if err := s.service.SetPalm(request); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.updatePalm(request)

	writeJSON(w, http.StatusOK, s.GetConfig().Palm)
}

// デバイス一覧取得ハンドラ
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.service.scan()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "デバイス一覧の取得に失敗しました: "+err.Error())
		return
	}

	type deviceResponse struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		Kind     string `json:"kind"`
		External bool   `json:"external"`
	}
	response := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		response = append(response, deviceResponse{
			Name:     d.Name,
			Path:     d.Path,
			Kind:     d.Kind.String(),
			External: d.External(),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// サスペンドハンドラ
func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Suspend(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

// レジュームハンドラ
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Resume(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// サービス起動ハンドラ
func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	if s.service.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}

	if err := s.service.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの起動に失敗しました: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// サービス停止ハンドラ
func (s *Server) handleStopService(w http.ResponseWriter, r *http.Request) {
	if !s.service.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
		return
	}

	if err := s.service.Stop(); err != nil && !errors.Is(err, errNotRunning) {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの停止に失敗しました: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// サービス状態取得ハンドラ
func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	status := "stopped"
	if s.service.IsRunning() {
		status = "running"
	}
	v := s.service.View()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"device":    v.Device,
		"frames":    v.Frames,
		"suspended": v.Suspended,
	})
}

// ヘルスチェックハンドラ
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	if errors.Is(err, errNotRunning) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
