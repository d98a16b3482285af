package plugins

import (
	"fmt"
	"ywwzwb/imagearchive/interfaces"
)

// Builtin returns a factory for every plugin this binary ships. The
// application builds one instance per id listed in its config.
func Builtin() map[string]interfaces.PluginFactory {
	return map[string]interfaces.PluginFactory{
		PostStorePluginID:      func() interfaces.IPlugin { return newPostStore() },
		ImagePostsPluginID:     func() interfaces.IPlugin { return newImagePostsStore() },
		FetcherPluginID:        func() interfaces.IPlugin { return newFetcher() },
		TranscoderPluginID:     func() interfaces.IPlugin { return newTranscoder() },
		ComparatorPoolPluginID: func() interfaces.IPlugin { return newComparatorPool() },
		ArchivePluginID:        func() interfaces.IPlugin { return newArchive() },
		PersistencePluginID:    func() interfaces.IPlugin { return newPersistence() },
		DBPluginID:             func() interfaces.IPlugin { return newDB() },
		IngestPluginID:         func() interfaces.IPlugin { return newIngest() },
		ArchiveCheckerPluginID: func() interfaces.IPlugin { return newArchiveChecker() },
		FeedPluginID:           func() interfaces.IPlugin { return newFeed() },
		APIPluginID:            func() interfaces.IPlugin { return newAPI() },
	}
}

// PluginError tells which plugin refused to load.
type PluginError struct {
	PluginID string
	Err      error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s: %v", e.PluginID, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// getService fetches a service and asserts it to T.
func getService[T any](app interfaces.IApplication, callerID, targetID string, serviceID interfaces.ServiceID) (T, error) {
	var zero T
	raw, err := app.GetService(callerID, targetID, serviceID)
	if err != nil {
		return zero, &PluginError{PluginID: callerID, Err: fmt.Errorf("get %s service: %w", serviceID, err)}
	}
	service, ok := raw.(T)
	if !ok {
		return zero, &PluginError{PluginID: callerID, Err: fmt.Errorf("service %s has unexpected type %T", serviceID, raw)}
	}
	return service, nil
}

func unsupportedService(serviceID interfaces.ServiceID) error {
	return fmt.Errorf("service not found: %s", serviceID)
}
