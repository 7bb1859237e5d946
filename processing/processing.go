// Package processing takes care of the logistics around reading tiles from a Source and
// writing them to a Target. Not the processing operation(s) itself.
package processing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/pdok/tilesieve/tile"
)

const DefaultBatchSize = 1000

type Options struct {
	// Workers is the number of tiles processed concurrently, NumCPU when zero.
	Workers int
	// BatchSize is the number of tiles written per transaction.
	BatchSize int
	// Sample skips the coordinates for which it returns false. Nil visits all tiles.
	Sample func(tile.Coord) bool
	// Progress shows a progress bar on stderr.
	Progress bool
	Logger   logrus.FieldLogger
}

// ProcessFunc handles one tile. It returns the blob to write, or nil to write nothing.
// A returned error aborts the run.
type ProcessFunc func(t Tile) ([]byte, error)

// Result counts what happened to the tiles of one run.
type Result struct {
	Listed    int64
	Skipped   int64
	Processed int64
	Written   int64
	Batches   int64
}

// runState holds the first fatal error of a run.
type runState struct {
	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
}

func (s *runState) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
		s.cancel()
	}
}

func (s *runState) failed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ProcessTiles feeds the tiles of source through f on a pool of workers and writes the
// results to target in batches from a single goroutine. target may be nil when f produces
// nothing to write.
//
// When ctx is canceled no new tiles are dispatched, tiles in flight are finished and the
// tiles they produced are committed; ProcessTiles then returns the context's error.
// On a fatal error the uncommitted batch is discarded.
func ProcessTiles(ctx context.Context, source Source, target Target, opts Options, f ProcessFunc) (Result, error) {
	var res Result
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	state := &runState{cancel: cancel}

	var bar *pb.ProgressBar
	if opts.Progress {
		total, err := source.CountTiles(runCtx)
		if err != nil {
			return res, err
		}
		bar = pb.New64(total).Prefix("tiles ")
		bar.Output = os.Stderr
		bar.ShowSpeed = true
		bar.SetRefreshRate(time.Second)
		bar.Start()
	}
	increment := func() {
		if bar != nil {
			bar.Increment()
		}
	}

	queueSize := 4 * opts.Workers
	listed := make(chan tile.Coord, queueSize)
	coords := make(chan tile.Coord, queueSize)
	results := make(chan Tile, queueSize)

	go func() {
		defer close(listed)
		if err := source.ListTiles(runCtx, listed); err != nil && runCtx.Err() == nil {
			state.fail(err)
		}
	}()

	go func() {
		defer close(coords)
		for c := range listed {
			atomic.AddInt64(&res.Listed, 1)
			if opts.Sample != nil && !opts.Sample(c) {
				atomic.AddInt64(&res.Skipped, 1)
				increment()
				continue
			}
			select {
			case coords <- c:
			case <-runCtx.Done():
				return
			}
		}
	}()

	workers := sync.WaitGroup{}
	for i := 0; i < opts.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for c := range coords {
				if runCtx.Err() != nil {
					continue
				}
				data, err := source.ReadTile(runCtx, c)
				if err != nil {
					if runCtx.Err() == nil {
						state.fail(err)
					}
					continue
				}
				out, err := f(Tile{Coord: c, Data: data})
				increment()
				if err != nil {
					state.fail(fmt.Errorf("tile %s: %w", c, err))
					continue
				}
				atomic.AddInt64(&res.Processed, 1)
				if out != nil && target != nil {
					results <- Tile{Coord: c, Data: out}
				}
			}
		}()
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// the writer
	batch := make([]Tile, 0, opts.BatchSize)
	flush := func() {
		if len(batch) == 0 || state.failed() != nil {
			return
		}
		if err := target.WriteBatch(batch); err != nil {
			state.fail(err)
			return
		}
		res.Written += int64(len(batch))
		res.Batches++
		batch = batch[:0]
	}
	for t := range results {
		if state.failed() != nil {
			continue
		}
		batch = append(batch, t)
		if len(batch) >= opts.BatchSize {
			flush()
		}
	}
	flush()

	if bar != nil {
		bar.Finish()
	}
	log.Infof("listed %d tiles, skipped %d, processed %d, wrote %d in %d batches",
		res.Listed, res.Skipped, res.Processed, res.Written, res.Batches)

	if err := state.failed(); err != nil {
		if discarded := len(batch); discarded > 0 {
			log.Warnf("discarded %d uncommitted tiles", discarded)
		}
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// IsCanceled reports whether err means the run was interrupted.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
