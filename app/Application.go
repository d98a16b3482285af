package app

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models/config"
	"ywwzwb/imagearchive/plugins"
	"ywwzwb/imagearchive/util"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type pluginMeta struct {
	plugin   interfaces.IPlugin
	depends  map[string]interface{}
	children map[string]interface{}
}
type Application struct {
	appConfig    config.Config
	factories    map[string]interfaces.PluginFactory
	pluginsMutex sync.Mutex
	plugins      map[string]*pluginMeta
}

func New() *Application {
	return NewWithFactories(plugins.Builtin())
}

func NewWithFactories(factories map[string]interfaces.PluginFactory) *Application {
	return &Application{
		factories: factories,
		plugins:   make(map[string]*pluginMeta),
	}
}

func (app *Application) Run() error {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file loaded:", err)
	}
	configPathFromEnv, _ := os.LookupEnv("CONFIG_PATH")
	var configPath string
	flag.StringVar(&configPath, "c", "", "config file path")
	flag.Parse()
	if len(configPath) == 0 {
		configPath = configPathFromEnv
	}
	if len(configPath) == 0 {
		flag.Usage()
		return fmt.Errorf("config file path is empty")
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	util.InitLogger(cfg.Logger)
	if err := app.Start(cfg); err != nil {
		return err
	}
	// wait for signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	signal := <-c
	slog.Info("receive signal", "signal", signal)
	app.Shutdown()
	return nil
}

// LoadConfig reads a yaml config file, applies defaults and validates it.
func LoadConfig(configPath string) (config.Config, error) {
	var cfg config.Config
	configReader, err := os.Open(configPath)
	if err != nil {
		return cfg, fmt.Errorf("open config file %s: %w", configPath, err)
	}
	defer configReader.Close()
	if err = yaml.NewDecoder(configReader).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config file %s: %w", configPath, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// Start loads every configured plugin. A plugin that fails to load is
// logged and skipped, the rest keep running.
func (app *Application) Start(cfg config.Config) error {
	app.appConfig = cfg
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	app.loadPlugins()
	if len(app.LoadedPlugins()) == 0 {
		return fmt.Errorf("no plugin loaded")
	}
	return nil
}

func (app *Application) loadPlugins() {
	for _, plugin := range app.appConfig.Plugins {
		app.pluginsMutex.Lock()
		_, loaded := app.plugins[plugin]
		app.pluginsMutex.Unlock()
		if loaded {
			continue
		}
		slog.Info("start load plugin", "plugin", plugin)
		if _, err := app.loadPlugin(plugin); err != nil {
			slog.Error("load plugin failed", "plugin", plugin, "error", err)
		}
	}
}
func (app *Application) loadPlugin(id string) (*pluginMeta, error) {
	factory, ok := app.factories[id]
	if !ok {
		return nil, fmt.Errorf("plugin not found, id:%s", id)
	}
	p := factory()
	slog.Info("load plugin", "plugin", id)
	plugin := &pluginMeta{plugin: p}
	plugin.depends = make(map[string]interface{})
	plugin.children = make(map[string]interface{})
	app.pluginsMutex.Lock()
	app.plugins[id] = plugin
	app.pluginsMutex.Unlock()
	err := p.Load(app)
	if err == nil {
		slog.Info("load plugin finish", "plugin", id)
		return plugin, nil
	}
	slog.Error("load plugin failed", "plugin", id, "error", err)
	p.Unload()
	app.pluginsMutex.Lock()
	delete(app.plugins, id)
	for dependID := range plugin.depends {
		if depend, ok := app.plugins[dependID]; ok {
			delete(depend.children, id)
		}
	}
	app.pluginsMutex.Unlock()

	return nil, err
}

// Shutdown unloads plugins leaves first: a plugin is only unloaded once
// nothing that depends on it is still loaded.
func (app *Application) Shutdown() {
	slog.Info("shutdown begin")
	for {
		var unloadPlugins = make(map[string]*pluginMeta)
		app.pluginsMutex.Lock()
		if len(app.plugins) == 0 {
			app.pluginsMutex.Unlock()
			slog.Info("all plugins are unloaded")
			break
		}
		for pluginID, pluginMeta := range app.plugins {
			// 移除没有子插件的插件
			if len(pluginMeta.children) == 0 {
				unloadPlugins[pluginID] = pluginMeta
				delete(app.plugins, pluginID)
			}
		}
		for pluginID, pluginMeta := range unloadPlugins {
			// 从依赖插件中, 将自己移除
			for dependID := range pluginMeta.depends {
				if depend, ok := app.plugins[dependID]; ok {
					delete(depend.children, pluginID)
				}
			}
		}
		if len(unloadPlugins) == 0 && len(app.plugins) > 0 {
			slog.Error("plugin referer may has dead loop")
			app.pluginsMutex.Unlock()
			break
		}
		app.pluginsMutex.Unlock()
		for pluginID, pluginMeta := range unloadPlugins {
			slog.Info("unload plugin", "plugin", pluginID)
			pluginMeta.plugin.Unload()
			slog.Info("unload plugin finish", "plugin", pluginID)
		}
	}
	slog.Info("shutdown finish")
}

// LoadedPlugins returns the ids of the plugins currently loaded.
func (app *Application) LoadedPlugins() []string {
	app.pluginsMutex.Lock()
	defer app.pluginsMutex.Unlock()
	ids := make([]string, 0, len(app.plugins))
	for id := range app.plugins {
		ids = append(ids, id)
	}
	return ids
}

func (app *Application) GetAppConfig() *config.Config {
	return &app.appConfig
}
func (app *Application) GetService(callerPluginID, targetPluginID string, serviceID interfaces.ServiceID) (interfaces.IService, error) {
	app.pluginsMutex.Lock()
	callerPlugin, ok := app.plugins[callerPluginID]
	if !ok {
		app.pluginsMutex.Unlock()
		return nil, fmt.Errorf("caller plugin not found, id:%s", callerPluginID)
	}
	targetPlugin, ok := app.plugins[targetPluginID]
	app.pluginsMutex.Unlock()
	if !ok {
		var err error
		targetPlugin, err = app.loadPlugin(targetPluginID)
		if err != nil {
			return nil, err
		}
	}
	service, err := targetPlugin.plugin.GetService(serviceID)
	if err != nil {
		return nil, err
	}
	app.pluginsMutex.Lock()
	callerPlugin.depends[targetPluginID] = nil
	targetPlugin.children[callerPluginID] = nil
	app.pluginsMutex.Unlock()
	return service, nil
}
