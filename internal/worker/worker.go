package worker

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

// Start runs jobs until a stop job arrives. A fresh worker is handed its first
// job directly by acquire and only joins the idle queue after finishing it.
func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			job.done <- runJob(job)
			w.pool.Release(w.jobChannel)
		}
	}()
}
