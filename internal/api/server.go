package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/char5742/touchpad-frames/internal/config"
)

// Server はAPIサーバーを表す構造体
type Server struct {
	server     *http.Server
	cfg        *config.Config
	configPath string
	service    *TouchpadService
	mutex      sync.RWMutex
	port       int
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(cfg *config.Config, configPath string, service *TouchpadService) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		service:    service,
		port:       cfg.API.Port,
	}
}

// Handler はAPIのルーティングを返す
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	s.setupRoutes(router)
	return router
}

// Start はAPIサーバーを開始する
func (s *Server) Start() error {
	s.mutex.Lock()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}
	srv := s.server
	s.mutex.Unlock()

	log.Printf("APIサーバーを開始します: http://localhost:%d", s.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop はAPIサーバーを停止する
func (s *Server) Stop(ctx context.Context) error {
	s.mutex.RLock()
	srv := s.server
	s.mutex.RUnlock()
	if srv != nil {
		log.Println("APIサーバーを停止します...")
		return srv.Shutdown(ctx)
	}
	return nil
}

// URL はライブビューのURLを返す
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d/api/touches", s.port)
}

// GetConfig は現在の設定を返す
func (s *Server) GetConfig() config.Config {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return *s.cfg
}

func (s *Server) updatePalm(p PalmSettings) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	p.apply(&s.cfg.Palm)
}

// writeJSON はJSONレスポンスを書き込む
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("JSONエンコードエラー: %v", err)
		}
	}
}

// writeError はエラーレスポンスを書き込む
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
