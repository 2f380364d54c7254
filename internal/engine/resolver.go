package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shaiso/Stencil/internal/domain"
)

// TemplateSource — источник шаблонов для Resolver.
type TemplateSource interface {
	Lookup(ctx context.Context, namespace, id string) (*domain.Template, error)
}

// Resolver разворачивает включения шаблонов в плоский граф задач.
type Resolver struct {
	templates TemplateSource
	logger    *slog.Logger
}

// NewResolver создаёт Resolver.
func NewResolver(templates TemplateSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		templates: templates,
		logger:    logger,
	}
}

// Resolve строит граф задач flow.
//
// Plain-задачи копируются как есть. Включение шаблона заменяется
// (рекурсивно) разрешёнными задачами шаблона на своём месте.
//
// Ошибки разрешения не возвращаются: при первой из них в граф
// добавляется один синтетический узел, а разрешение прекращается на
// всех уровнях вложенности. Ошибка доступна в Graph.Failure.
//
// Resolve не изменяет flow и при неизменном registry даёт
// структурно одинаковый результат.
func (r *Resolver) Resolve(ctx context.Context, flow *domain.Flow) *Graph {
	res := &resolution{
		ctx:   ctx,
		r:     r,
		graph: newGraph(),
	}
	res.expand(flow.Tasks, nil, nil)
	res.graph.link()

	if res.graph.Failure != nil {
		r.logger.Debug("template resolution failed",
			"flow", flow.Key().String(),
			"error", res.graph.Failure,
		)
	}
	return res.graph
}

// resolution — состояние одного вызова Resolve.
type resolution struct {
	ctx    context.Context
	r      *Resolver
	graph  *Graph
	halted bool
}

func (res *resolution) expand(tasks []domain.TaskDef, frame *Frame, chain []domain.TemplateKey) {
	for i := range tasks {
		if res.halted {
			return
		}
		task := tasks[i].Clone()

		if !task.IsInclude() {
			if res.graph.Node(task.ID) != nil {
				err := NewValidationError(task.ID, "id",
					fmt.Sprintf("duplicate task ID after template expansion: %s", task.ID), ErrDuplicateTaskID)
				// Синтетическим узлом становится включение, внёсшее дубликат:
				// ID узлов графа должны оставаться уникальными.
				if frame != nil {
					res.fail(domain.Include(frame.IncludeID, frame.Template.Namespace, frame.Template.ID, frame.Args), frame.Parent, err)
				} else {
					res.fail(task, frame, err)
				}
				return
			}
			res.graph.add(&Node{ID: task.ID, Task: task, Frame: frame})
			continue
		}

		key := task.TemplateKey()
		if slices.Contains(chain, key) {
			cycle := append(slices.Clone(chain), key)
			res.fail(task, frame, &CycleDetectedError{Chain: cycle})
			return
		}

		tmpl, err := res.r.templates.Lookup(res.ctx, key.Namespace, key.ID)
		if err != nil {
			res.fail(task, frame, err)
			return
		}

		child := &Frame{
			IncludeID: task.ID,
			Template:  key,
			Args:      task.Args,
			Parent:    frame,
		}
		res.expand(tmpl.Tasks, child, append(slices.Clone(chain), key))
	}
}

// fail добавляет синтетический узел и останавливает разрешение.
func (res *resolution) fail(task domain.TaskDef, frame *Frame, err error) {
	res.graph.add(&Node{
		ID:        task.ID,
		Task:      task,
		Frame:     frame,
		Synthetic: true,
		Err:       err,
	})
	res.graph.Failure = err
	res.halted = true
}
