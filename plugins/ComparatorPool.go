package plugins

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models/config"
	"ywwzwb/imagearchive/util"
)

const ComparatorPoolPluginID string = "ComparatorPool"

var ErrPoolClosed = errors.New("comparator pool closed")

type compareTask struct {
	ctx    context.Context
	req    interfaces.MatchRequest
	result chan compareOutcome
}

type compareOutcome struct {
	result interfaces.MatchResult
	err    error
}

// ComparatorPool runs similarity searches on a fixed set of worker
// goroutines. Workers decode archived files themselves, callers only pass
// paths.
type ComparatorPool struct {
	config     config.ComparatorConfig
	comparator util.Comparator
	transcoder interfaces.ITranscoderService
	tasks      chan compareTask
	scratchDir string
	stopChain  chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func newComparatorPool() *ComparatorPool {
	return &ComparatorPool{}
}

func (p *ComparatorPool) Name() string {
	return "ComparatorPool"
}
func (p *ComparatorPool) ID() string {
	return ComparatorPoolPluginID
}
func (p *ComparatorPool) Load(app interfaces.IApplication) error {
	transcoder, err := getService[interfaces.ITranscoderService](app, p.ID(), TranscoderPluginID, interfaces.TranscoderServiceID)
	if err != nil {
		slog.Warn("transcoder unavailable, only natively decodable formats can be compared", "error", err)
		transcoder = nil
	}
	return p.start(app.GetAppConfig().Comparator, transcoder)
}

// start launches the workers. A transcoder gets a private scratch dir for its
// converted files, removed again on Unload.
func (p *ComparatorPool) start(cfg config.ComparatorConfig, transcoder interfaces.ITranscoderService) error {
	p.config = cfg
	p.transcoder = transcoder
	if transcoder != nil {
		dir, err := os.MkdirTemp("", "imagearchive-cmp-*")
		if err != nil {
			return fmt.Errorf("create comparator scratch dir: %w", err)
		}
		p.scratchDir = dir
	}
	switch cfg.Method {
	case config.CompareMethodPHash:
		p.comparator = util.HashComparator{}
	default:
		p.comparator = util.PixelComparator{MaxSide: cfg.MaxSide, Tolerance: cfg.Tolerance}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	p.tasks = make(chan compareTask)
	p.stopChain = make(chan struct{})
	for idx := 0; idx < workers; idx++ {
		p.wg.Add(1)
		go p.work(idx)
	}
	slog.Info("comparator pool started", "workers", workers, "method", cfg.Method)
	return nil
}

func (p *ComparatorPool) Unload() {
	if p.stopChain == nil {
		return
	}
	p.stopOnce.Do(func() { close(p.stopChain) })
	p.wg.Wait()
	if p.scratchDir != "" {
		if err := os.RemoveAll(p.scratchDir); err != nil {
			slog.Warn("remove comparator scratch dir failed", "dir", p.scratchDir, "error", err)
		}
		p.scratchDir = ""
	}
}
func (p *ComparatorPool) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	switch serviceID {
	case interfaces.ComparatorPoolServiceID:
		return p, nil
	}
	return nil, unsupportedService(serviceID)
}

// FindMatch submits the search to a worker and waits for its result.
func (p *ComparatorPool) FindMatch(ctx context.Context, req interfaces.MatchRequest) (interfaces.MatchResult, error) {
	task := compareTask{ctx: ctx, req: req, result: make(chan compareOutcome, 1)}
	select {
	case <-p.stopChain:
		return interfaces.MatchResult{}, ErrPoolClosed
	case <-ctx.Done():
		return interfaces.MatchResult{}, ctx.Err()
	case p.tasks <- task:
	}
	select {
	case <-ctx.Done():
		return interfaces.MatchResult{}, ctx.Err()
	case outcome := <-task.result:
		return outcome.result, outcome.err
	}
}

func (p *ComparatorPool) work(idx int) {
	defer p.wg.Done()
	logger := slog.With("worker", idx)
	for {
		select {
		case <-p.stopChain:
			logger.Debug("comparator worker stopped")
			return
		case task := <-p.tasks:
			result, err := p.run(task)
			task.result <- compareOutcome{result: result, err: err}
		}
	}
}

func (p *ComparatorPool) run(task compareTask) (result interfaces.MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compare task panicked: %v", r)
		}
	}()
	return p.match(task.ctx, task.req)
}

func (p *ComparatorPool) match(ctx context.Context, req interfaces.MatchRequest) (interfaces.MatchResult, error) {
	var result interfaces.MatchResult
	logger := slog.With("candidate", req.CandidatePath)
	candidate, err := p.decode(ctx, req.CandidatePath)
	if err != nil {
		return result, fmt.Errorf("%w: %s: %v", util.ErrUndecodableImage, req.CandidatePath, err)
	}
	ref, err := p.comparator.Reference(candidate)
	if err != nil {
		return result, fmt.Errorf("%w: %v", util.ErrUndecodableImage, err)
	}
	returnEarly := req.Threshold + p.config.EarlyExitSlack
	for _, filename := range req.Filenames {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		archived, err := p.decode(ctx, filepath.Join(req.Dir, filename))
		if err != nil {
			logger.Warn("skip unreadable archived image", "filename", filename, "error", err)
			continue
		}
		score, err := ref.Mismatch(archived, returnEarly)
		if err != nil {
			logger.Warn("compare failed", "filename", filename, "error", err)
			continue
		}
		result.Compared++
		if score < req.Threshold {
			result.Found = true
			result.Filename = filename
			result.Score = score
			logger.Debug("match found", "filename", filename, "score", score)
			return result, nil
		}
	}
	return result, nil
}

// decode reads path, going through the transcoder for formats the image
// package has no decoder for.
func (p *ComparatorPool) decode(ctx context.Context, path string) (image.Image, error) {
	if p.transcoder == nil || !p.transcoder.NeedsTranscode(path) {
		return util.DecodeFile(path)
	}
	converted, err := os.CreateTemp(p.scratchDir, filepath.Base(path)+".*.png")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	converted.Close()
	defer os.Remove(converted.Name())
	if err := p.transcoder.ToPNG(ctx, path, converted.Name()); err != nil {
		return nil, err
	}
	return util.DecodeFile(converted.Name())
}
