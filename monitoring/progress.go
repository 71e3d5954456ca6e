package monitoring

import (
	"encoding/json"
	"sync"
	"time"
)

// A ProgressBar tracks how many node sets of a batch have been materialized.
type ProgressBar struct {
	lock       sync.Mutex
	ID         string
	Name       string
	StartTime  time.Time
	Total      uint64
	Finished   uint64
	InProgress uint64
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.InProgress += amount
}

// IncrementFinished add a certain amount to finished element.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.Finished += amount
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

// MarshalJSON encodes a consistent copy of the counters.
func (b *ProgressBar) MarshalJSON() ([]byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	return json.Marshal(struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		StartTime  time.Time `json:"start_time"`
		Total      uint64    `json:"total"`
		Finished   uint64    `json:"finished"`
		InProgress uint64    `json:"in_progress"`
	}{b.ID, b.Name, b.StartTime, b.Total, b.Finished, b.InProgress})
}
