package queue

import (
	"github.com/hibiken/asynq"
)

type HandlersRegistry struct {
	mux   *asynq.ServeMux
	types []string
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
	r.types = append(r.types, taskType)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

// Types lists the registered task types.
func (r *HandlersRegistry) Types() []string {
	return r.types
}
