package interfaces

type ServiceID string

// IService is whatever a plugin hands out for a ServiceID; callers assert
// it to the matching interface.
type IService interface{}

type IPlugin interface {
	Name() string
	ID() string
	Load(app IApplication) error
	Unload()
	GetService(serviceID ServiceID) (IService, error)
}

// PluginFactory builds a fresh plugin instance for one application.
type PluginFactory func() IPlugin
