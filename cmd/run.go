package cmd

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/radovskyb/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// engineHolder guards the engine swapped by the config watcher
// engineHolder 保护被配置监听器替换的引擎
type engineHolder struct {
	mu     sync.Mutex
	engine *Engine
}

func (h *engineHolder) reload(f *commonFlags) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine != nil {
		if err := h.engine.Close(); err != nil {
			bootstrapLogger.Warn("engine closed with error", zap.Error(err))
		}
		h.engine = nil
	}
	e, err := NewEngine(f)
	if err != nil {
		bootstrapLogger.Error("engine restart err", zap.Error(err))
		return
	}
	h.engine = e
}

func (h *engineHolder) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil {
		return nil
	}
	err := h.engine.Close()
	h.engine = nil
	return err
}

func init() {
	runEnv := new(commonFlags)

	var runCommand = &cobra.Command{
		Use:   "run [-c config_file] [-d working_dir]",
		Short: "Run the sync engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := NewEngine(runEnv)
			if err != nil {
				bootstrapLogger.Error("sync engine start err", zap.Error(err))
				return err
			}
			holder := &engineHolder{engine: e}

			w := watcher.New()
			// 每个周期至多一个事件，只关注写入
			w.SetMaxEvents(1)
			w.FilterOps(watcher.Write)

			go func() {
				for {
					select {
					case event := <-w.Event:
						bootstrapLogger.Info("config watcher change", zap.String("event", event.Op.String()), zap.String("file", event.Path))
						holder.reload(runEnv)
					case err := <-w.Error:
						bootstrapLogger.Error("config watcher error", zap.Error(err))
					case <-w.Closed:
						return
					}
				}
			}()

			if err := w.Add(e.config.File); err != nil {
				bootstrapLogger.Error("config watcher file error", zap.Error(err))
			} else {
				go func() {
					if err := w.Start(5 * time.Second); err != nil {
						bootstrapLogger.Error("config watcher start error", zap.Error(err))
					}
				}()
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			bootstrapLogger.Info("Received shutdown signal, initiating graceful shutdown...")

			w.Close()
			if err := holder.close(); err != nil {
				bootstrapLogger.Error("Shutdown completed with error", zap.Error(err))
				return err
			}
			bootstrapLogger.Info("Sync engine has been shut down gracefully.")
			return nil
		},
	}

	rootCmd.AddCommand(runCommand)
	bindCommonFlags(runCommand, runEnv)
}
