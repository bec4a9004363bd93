package types

import (
	"context"
)

type CronJob func(ctx context.Context) error

type Scheduler interface {
	LifecycleManager
	AddJob(name, spec string, job CronJob) error
	RemoveJob(name string) error
	Jobs() []string
}
