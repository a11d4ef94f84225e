// Package config 提供环境配置和可热更新的运行时设置
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ============== 环境配置 ==============

// EnvConfig 进程级环境配置（启动时从环境变量读取一次，不热更新）
type EnvConfig struct {
	Port         string // 监听端口
	DBPath       string // SQLite 历史存储路径
	DataDir      string // 窗口存储数据目录
	SettingsFile string // 运行时设置文件路径
	AccessKey    string // 管理 API 访问密钥（为空则不鉴权）
	LogFile      string // 日志文件路径（为空则输出到 stderr）
	WindowQuota  int64  // 窗口存储容量配额（字节，0 不限制）
	Ephemeral    bool   // 启用后窗口存储使用 no-op 后端（不落盘）
}

// LoadEnvConfig 从环境变量加载配置
func LoadEnvConfig() *EnvConfig {
	cfg := &EnvConfig{
		Port:         getEnv("PORT", "8790"),
		DBPath:       getEnv("METRICS_DB_PATH", ".config/metrics.db"),
		DataDir:      getEnv("METRICS_DATA_DIR", ".config/data"),
		SettingsFile: getEnv("METRICS_SETTINGS_FILE", ".config/settings.json"),
		AccessKey:    os.Getenv("ACCESS_KEY"),
		LogFile:      os.Getenv("LOG_FILE"),
		Ephemeral:    os.Getenv("METRICS_EPHEMERAL") == "true",
	}

	if v := os.Getenv("WINDOW_QUOTA_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.WindowQuota = n
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ============== 运行时设置 ==============

// Settings 可热更新的运行时设置（持久化到 JSON 文件）
type Settings struct {
	// RetentionDays 历史数据保留天数（7-365，默认 90）
	RetentionDays int `json:"retentionDays"`
}

// DefaultSettings 默认设置
func DefaultSettings() Settings {
	return Settings{RetentionDays: 90}
}

// clampSettings 校正设置中的非法值
func clampSettings(s Settings) Settings {
	if s.RetentionDays < 7 {
		s.RetentionDays = 7
	} else if s.RetentionDays > 365 {
		s.RetentionDays = 365
	}
	return s
}

// SettingsManager 设置管理器：文件持久化 + fsnotify 热更新
type SettingsManager struct {
	mu           sync.RWMutex
	settings     Settings
	settingsFile string
	watcher      *fsnotify.Watcher
	stopChan     chan struct{}
	closeOnce    sync.Once
	onChange     func(Settings)
}

// NewSettingsManager 创建设置管理器并启动文件监听
// 设置文件不存在时用默认值创建
func NewSettingsManager(settingsFile string) (*SettingsManager, error) {
	sm := &SettingsManager{
		settings:     DefaultSettings(),
		settingsFile: settingsFile,
		stopChan:     make(chan struct{}),
	}

	if err := sm.load(); err != nil {
		return nil, err
	}

	if err := sm.startWatcher(); err != nil {
		// 监听失败只降级为不热更新，不阻止启动
		log.Printf("[Config-Watch] 警告: 启动设置文件监听失败: %v", err)
	}

	return sm, nil
}

// OnChange 注册设置变更回调（热重载和 UpdateSettings 都会触发）
func (sm *SettingsManager) OnChange(fn func(Settings)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// GetSettings 获取当前设置（值拷贝）
func (sm *SettingsManager) GetSettings() Settings {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.settings
}

// UpdateSettings 更新设置并写回文件
func (sm *SettingsManager) UpdateSettings(s Settings) error {
	sm.mu.Lock()
	sm.settings = clampSettings(s)
	err := sm.saveLocked()
	applied, fn := sm.settings, sm.onChange
	sm.mu.Unlock()

	if err == nil && fn != nil {
		fn(applied)
	}
	return err
}

// load 从文件加载设置，文件不存在时写入默认值
func (sm *SettingsManager) load() error {
	data, err := os.ReadFile(sm.settingsFile)
	if os.IsNotExist(err) {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		return sm.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("读取设置文件失败: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		log.Printf("[Config-Load] 警告: 设置文件解析失败，使用默认设置: %v", err)
		return nil
	}

	sm.mu.Lock()
	sm.settings = clampSettings(s)
	applied, fn := sm.settings, sm.onChange
	sm.mu.Unlock()

	log.Printf("[Config-Load] 已加载设置: 保留 %d 天", applied.RetentionDays)
	if fn != nil {
		fn(applied)
	}
	return nil
}

// saveLocked 写回设置文件（调用前需持有写锁）
func (sm *SettingsManager) saveLocked() error {
	dir := filepath.Dir(sm.settingsFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建设置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(sm.settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sm.settingsFile, data, 0644)
}

// startWatcher 启动设置文件监听（带去抖，编辑器的多次写事件合并为一次重载）
func (sm *SettingsManager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	sm.watcher = watcher

	// 监听目录而不是文件本身，兼容原子替换式写入
	if err := watcher.Add(filepath.Dir(sm.settingsFile)); err != nil {
		watcher.Close()
		sm.watcher = nil
		return err
	}

	go func() {
		var debounce *time.Timer
		target := filepath.Clean(sm.settingsFile)

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					if err := sm.load(); err != nil {
						log.Printf("[Config-Watch] 警告: 重载设置失败: %v", err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Config-Watch] 警告: 文件监听错误: %v", err)
			case <-sm.stopChan:
				return
			}
		}
	}()

	return nil
}

// Close 停止文件监听
func (sm *SettingsManager) Close() error {
	var err error
	sm.closeOnce.Do(func() {
		close(sm.stopChan)
		if sm.watcher != nil {
			err = sm.watcher.Close()
		}
	})
	return err
}
