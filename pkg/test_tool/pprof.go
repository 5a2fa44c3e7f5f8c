package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof 非 production 環境時在 addr 啟動 pprof 監控伺服器
func StartPprof(addr string) {
	if config.IsProduction() || addr == "" {
		logger.Log.Info("pprof is disabled")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Warn("pprof server failed", zap.Error(err))
		}
	}()
}

// curl http://localhost:6060/debug/pprof/goroutine?debug=1 可看每個 session 的 event loop / outbox goroutine
