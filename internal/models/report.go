package models

// JobStatusView is what pollers see of a job.
type JobStatusView struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Progress  Progress  `json:"progress"`
	LastError string    `json:"last_error,omitempty"`
	LogTail   []string  `json:"log_tail"`
}

// JobReport summarizes the outcome of every item in a job.
type JobReport struct {
	Job      JobStatusView `json:"job"`
	Albums   []*Album      `json:"albums"`
	Items    []*Item       `json:"items"`
	Uploaded int           `json:"uploaded"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Pending  int           `json:"pending"`
}

// NewJobReport tallies items by outcome.
func NewJobReport(job *Job, albums []*Album, items []*Item) *JobReport {
	r := &JobReport{Job: job.View(), Albums: albums, Items: items}
	for _, it := range items {
		switch it.Status {
		case ItemDone:
			r.Uploaded++
		case ItemSkipped:
			r.Skipped++
		case ItemFailed:
			r.Failed++
		default:
			r.Pending++
		}
	}
	return r
}
