package api

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

type enqueueJob struct {
	cmds  []domain.Command
	added []string // keys added to deduper (for rollback on enqueue failure)
}

var (
	once           sync.Once
	jobs           chan enqueueJob
	workerCount    int
	jobBuf         int
	enqueueTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalStore    Storage
	globalDeduper  Deduper
	globalLog      *log.Logger
	workerWG       sync.WaitGroup
)

const (
	minEnqueueWorkers = 32
	maxEnqueueWorkers = 192
	workersPerQueue   = 4
	workersPerCPU     = 24
	bufferPerWorker   = 128
)

// computeWorkerDefaults sizes the sender pool from the storage queue
// concurrency and the host CPU count, clamped to a sane range.
func computeWorkerDefaults(queueConcurrency, cpu int) (workers, buffer int) {
	workers = queueConcurrency * workersPerQueue
	if byCPU := cpu * workersPerCPU; byCPU > workers {
		workers = byCPU
	}
	if workers < minEnqueueWorkers {
		workers = minEnqueueWorkers
	}
	if workers > maxEnqueueWorkers {
		workers = maxEnqueueWorkers
	}
	return workers, workers * bufferPerWorker
}

// queueConcurrencyProvider is satisfied by storage backends that bound their
// queue fan-out; the pool scales to match.
type queueConcurrencyProvider interface {
	QueueConcurrency() int
}

func queueConcurrencyOf(store Storage) int {
	if p, ok := store.(queueConcurrencyProvider); ok {
		return p.QueueConcurrency()
	}
	return 0
}

// shutdownCommandSender stops worker goroutines and clears shared state. It is intended for tests.
func shutdownCommandSender() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalStore = nil
	globalDeduper = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	enqueueTimeout = 0
	handoffTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initCommandSender(store Storage, deduper Deduper, logger *log.Logger) {
	once.Do(func() {
		globalStore = store
		globalDeduper = deduper
		if logger == nil {
			panic("Logger is not initialized")
		}
		globalLog = logger

		defWorkers, defBuf := computeWorkerDefaults(queueConcurrencyOf(store), runtime.NumCPU())
		workerCount = envInt("ENQUEUE_WORKERS", defWorkers)
		jobBuf = envInt("ENQUEUE_BUFFER", defBuf)
		enqueueTimeout = envDur("ENQUEUE_TIMEOUT", 60*time.Second)
		handoffTimeout = envDur("ENQUEUE_HANDOFF_TIMEOUT", 15*time.Millisecond)

		jobs = make(chan enqueueJob, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go worker(i, jobs)
		}
		globalLog.Infof("command sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, enqueueTimeout, handoffTimeout)
	})
}

func worker(id int, jobCh <-chan enqueueJob) {
	defer workerWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(bg, enqueueTimeout)
		err := globalStore.EnqueueCommands(ctx, j.cmds)
		cancel()

		if err != nil {
			for _, k := range j.added {
				if rerr := globalDeduper.Remove(bg, k); rerr != nil {
					globalLog.Errorf("dedupe rollback failed, err: %v, key: %s", rerr, k)
				}
			}
			globalLog.Errorf("enqueue failed, err: %v, count: %d, worker: %d", err, len(j.cmds), id)
		}
	}
}

func tryEnqueueJob(job enqueueJob) bool {
	if jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan enqueueJob, job enqueueJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan enqueueJob, job enqueueJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
