package interfaces

import (
	"ywwzwb/imagearchive/models/config"
)

type IApplication interface {
	Run() error

	GetAppConfig() *config.Config

	GetService(callerPluginID, targetPluginID string, serviceID ServiceID) (IService, error)
}
