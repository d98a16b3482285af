package plugins

import (
	"log/slog"
	"os"
	"time"
	"ywwzwb/imagearchive/interfaces"
)

const ArchiveCheckerPluginID string = "ArchiveChecker"

// ArchiveChecker periodically looks for archived images whose file is gone.
// It only reports; the registry keeps the entry.
type ArchiveChecker struct {
	archive         interfaces.IArchiveService
	interval        time.Duration
	stopChain       chan bool
	stopFinishChain chan bool
}

func newArchiveChecker() *ArchiveChecker {
	checker := ArchiveChecker{}
	checker.stopChain = make(chan bool)
	checker.stopFinishChain = make(chan bool)
	return &checker
}

func (d *ArchiveChecker) Name() string {
	return "ArchiveChecker"
}

func (d *ArchiveChecker) ID() string {
	return ArchiveCheckerPluginID
}

func (d *ArchiveChecker) Load(app interfaces.IApplication) error {
	archive, err := getService[interfaces.IArchiveService](app, d.ID(), ArchivePluginID, interfaces.ArchiveServiceID)
	if err != nil {
		slog.Error("get archive service failed", "error", err)
		return err
	}
	d.archive = archive
	d.interval = app.GetAppConfig().Checker.Interval
	go d.checkData()
	return nil
}

func (d *ArchiveChecker) Unload() {
	if d.archive == nil {
		return
	}
	d.stopChain <- true
	<-d.stopFinishChain
}

func (d *ArchiveChecker) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	return nil, unsupportedService(serviceID)
}

// CheckNow returns the filenames of archived images missing on disk.
func (d *ArchiveChecker) CheckNow() []string {
	missing := make([]string, 0)
	for _, img := range d.archive.List() {
		path := d.archive.Path(img.Filename)
		if _, err := os.Stat(path); err != nil {
			slog.Error("image not found", "filename", img.Filename, "path", path, "error", err)
			missing = append(missing, img.Filename)
		}
	}
	return missing
}

func (d *ArchiveChecker) checkData() {
	for {
		missing := d.CheckNow()
		slog.Info("check finish", "images", d.archive.Len(), "missing", len(missing))
		select {
		case <-d.stopChain:
			goto exit
		case <-time.After(d.interval):
			continue
		}
	}
exit:
	d.stopFinishChain <- true
}
