package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"storycast/logger"
)

// Watch 监听 .env 文件变化并热加载流水线调优参数。
// 只有 Load() 覆盖的字段会被刷新；正在运行的任务不受影响，
// 下一个任务通过 config.Current() 读到新值。
func Watch(stop <-chan struct{}) error {
	envPath, err := filepath.Abs(".env")
	if err != nil {
		return err
	}
	if _, err := os.Stat(envPath); err != nil {
		// 没有 .env 文件就无事可做
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// 监听目录而不是文件本身：编辑器通过 rename 保存时 inode 会变
	if err := watcher.Add(filepath.Dir(envPath)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		// 抖动合并：保存往往触发多个事件
		var pending <-chan time.Time

		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != envPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					pending = time.After(200 * time.Millisecond)
				}
			case <-pending:
				pending = nil
				Reload()
				logger.Info("配置已热加载", logger.String("path", envPath))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("配置监听错误", logger.ErrorField(err))
			}
		}
	}()

	return nil
}
