package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"codeownerscan/internal/models"

	"golang.org/x/sync/errgroup"
)

// RecordResolver resolves one repository; see Resolver.Resolve.
type RecordResolver interface {
	Resolve(ctx context.Context, target models.RepositoryTarget) (models.OwnershipRecord, error)
}

// TaskResult is the record produced for one dispatched repository.
type TaskResult struct {
	Target models.RepositoryTarget
	Record models.OwnershipRecord
}

type Scheduler struct {
	resolver    RecordResolver
	concurrency int
}

func NewScheduler(r RecordResolver, concurrency int) (*Scheduler, error) {
	if r == nil {
		return nil, errors.New("resolver is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{resolver: r, concurrency: concurrency}, nil
}

// Execute resolves targets on a bounded pool and streams the records.
//
// Channel semantics:
//   - Results arrive in completion order, at most one per target.
//   - A fatal resolver error (authentication failure) stops dispatch; tasks
//     already running finish and their records are still sent. The error is
//     then reported on the error channel.
//   - On context cancellation dispatch stops and in-flight tasks abort; their
//     targets get no result. ctx.Err() is reported.
//   - Both channels are closed reliably. The caller must drain results.
func (s *Scheduler) Execute(ctx context.Context, targets []models.RepositoryTarget) (<-chan TaskResult, <-chan error) {
	resultsCh := make(chan TaskResult)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultsCh)
		defer close(errCh)

		trySendErr := func(err error) {
			if err == nil {
				return
			}
			select {
			case errCh <- err:
			default:
			}
		}

		if ctx == nil {
			trySendErr(errors.New("context is nil"))
			return
		}
		if s == nil || s.resolver == nil {
			trySendErr(errors.New("scheduler is not initialized; use NewScheduler"))
			return
		}

		var (
			mu       sync.Mutex
			fatalErr error
			stop     = make(chan struct{})
		)
		setFatal := func(err error) {
			mu.Lock()
			defer mu.Unlock()
			if fatalErr == nil {
				fatalErr = err
				close(stop)
			}
		}
		stopped := func() bool {
			select {
			case <-stop:
				return true
			default:
				return ctx.Err() != nil
			}
		}

		var g errgroup.Group
		g.SetLimit(s.concurrency)

		for _, target := range targets {
			if stopped() {
				break
			}
			g.Go(func() error {
				// A slot may free up only after dispatch was stopped.
				if stopped() {
					return nil
				}
				rec, err := s.resolver.Resolve(ctx, target)
				if err != nil {
					if ctx.Err() == nil {
						setFatal(err)
					}
					return nil
				}
				resultsCh <- TaskResult{Target: target, Record: rec}
				return nil
			})
		}

		_ = g.Wait()

		mu.Lock()
		err := fatalErr
		mu.Unlock()
		if err != nil {
			trySendErr(err)
			return
		}
		trySendErr(ctx.Err())
	}()

	return resultsCh, errCh
}
