package runner

import "sync"

type Job func() error

// RunPool executes jobs with at most maxWorkers concurrently. Returns all errors.
func RunPool(maxWorkers int, jobs []Job) []error {
	return RunIndexed(maxWorkers, len(jobs), func(i int) error {
		return jobs[i]()
	})
}

// RunIndexed calls fn for every index in [0, n) on at most maxWorkers
// goroutines. fn may write to slot i of a pre-sized slice without locking.
func RunIndexed(maxWorkers, n int, fn func(i int) error) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers > n {
		maxWorkers = n
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	next := make(chan int)

	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				if err := fn(i); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
	return errs
}
