package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Upstream de validação: responde qualquer rota com o que recebeu, para
// conferir no gateway quais requisições passaram pelo guard.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>"))
		logger.Info("alguém acessou /showTela", "remote", r.RemoteAddr, "xff", r.Header.Get("X-Forwarded-For"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"at":     time.Now().UTC(),
		})
		logger.Info("upstream hit", "method", r.Method, "path", r.URL.Path)
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("servidor rodando", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("erro ao subir o servidor", "error", err)
		os.Exit(1)
	}
}
